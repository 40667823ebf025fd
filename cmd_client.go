package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/apiclient"
	"github.com/CrestNiraj12/rantfeed/infra/auth"
	"github.com/CrestNiraj12/rantfeed/infra/editor"
	"github.com/CrestNiraj12/rantfeed/infra/media"
)

func (c *cli) client() *apiclient.Client {
	var tokens auth.TokenProvider = auth.NewFileTokenProvider(c.cfg.Client.TokenPath)
	if c.accessToken != "" {
		tokens = auth.StaticToken(c.accessToken)
	}
	return apiclient.NewClient(c.cfg.Client.APIURL, tokens)
}

func (c *cli) clientCmds() []*cobra.Command {
	var (
		imagePath string
		imageAlt  string
		limit     int
		follow    bool
	)

	postCmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Publish a post",
		Long:  "Publish a post. Without a text argument $EDITOR opens to write it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 {
				text = args[0]
			} else {
				var err error
				text, err = editor.NewEnvEditor().Compose(cmd.Context(), "")
				if err != nil {
					return err
				}
				if text == "" {
					fmt.Fprintln(c.out, "empty post, nothing published")
					return nil
				}
			}
			var img *apiclient.Image
			if imagePath != "" {
				data, err := readImage(imagePath)
				if err != nil {
					return err
				}
				img = &apiclient.Image{
					Name:        filepath.Base(imagePath),
					ContentType: http.DetectContentType(data),
					Body:        bytes.NewReader(data),
				}
			}
			post, err := c.client().CreatePost(cmd.Context(), text, imageAlt, img)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "posted %s\n", post.ID)
			return nil
		},
	}
	postCmd.Flags().StringVar(&imagePath, "image", "", "Attach an image file")
	postCmd.Flags().StringVar(&imageAlt, "alt", "", "Alt text of the attached image")

	likeCmd := &cobra.Command{
		Use:   "like [post-id]",
		Short: "Like or unlike a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := c.client().ToggleLike(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			verb := "unliked"
			if state.Liked {
				verb = "liked"
			}
			fmt.Fprintf(c.out, "%s %s (%d likes)\n", verb, state.PostID, state.LikeCount)
			return nil
		},
	}

	favoriteCmd := &cobra.Command{
		Use:   "favorite [post-id]",
		Short: "Add or remove a post from your favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := c.client().ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			verb := "removed from favorites:"
			if state.Favorited {
				verb = "added to favorites:"
			}
			fmt.Fprintf(c.out, "%s %s (%d favorites)\n", verb, state.PostID, state.Count)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [post-id]",
		Short: "Delete one of your posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().DeletePost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "deleted %s\n", args[0])
			return nil
		},
	}

	timelineCmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the newest posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				return c.client().WatchTimeline(cmd.Context(), limit, func(posts []domain.Post) error {
					fmt.Fprintln(c.out, "---")
					return printPosts(c.out, posts)
				})
			}
			posts, err := c.client().Timeline(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printPosts(c.out, posts)
		},
	}
	timelineCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of posts (default: server setting)")
	timelineCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing the timeline as it changes")

	favoritesCmd := &cobra.Command{
		Use:   "favorites",
		Short: "Show your favorite posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			posts, err := c.client().Favorites(cmd.Context())
			if err != nil {
				return err
			}
			return printPosts(c.out, posts)
		},
	}

	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := c.client().Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s (%s)\nfavorites: %d\n", authorLabel(me.DisplayName, me.ID), me.ID, len(me.FavoritePostIDs))
			return nil
		},
	}

	return []*cobra.Command{postCmd, likeCmd, favoriteCmd, deleteCmd, timelineCmd, favoritesCmd, meCmd}
}

func readImage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, media.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > media.MaxImageSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrImageTooLarge, path, media.MaxImageSize)
	}
	return data, nil
}

func printPosts(w io.Writer, posts []domain.Post) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range posts {
		text := strings.ReplaceAll(p.Text, "\n", " ")
		if p.ImageURL != "" {
			text += " [image]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d♥\t%s\n", p.ID, authorLabel(p.AuthorName, p.AuthorID), p.LikeCount, text)
	}
	return tw.Flush()
}

// authorLabel names an author in listings. Unnamed authors show their id
// so the same author reads the same on every line.
func authorLabel(name, id string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "anonymous"
}
