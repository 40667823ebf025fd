package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

// BlobStore persists uploaded images and returns their public URL.
// Implemented by infrastructure (local directory, S3).
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// ImageProcessor validates an upload and returns the re-encoded image
// and its content type.
type ImageProcessor interface {
	Prepare(r io.Reader, contentType string, size int64) ([]byte, string, error)
}

// Upload is an image attached to a new post.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// NewPost is the input of PostService.Create.
type NewPost struct {
	Text     string
	Image    *Upload
	ImageAlt string
}

// PostService creates, reads and deletes posts.
type PostService struct {
	store  docstore.Store
	blobs  BlobStore
	images ImageProcessor
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewPostService creates a PostService. blobs and images may be nil, in
// which case posts with images are rejected.
func NewPostService(store docstore.Store, blobs BlobStore, images ImageProcessor, log *zap.Logger) *PostService {
	return &PostService{
		store:  store,
		blobs:  blobs,
		images: images,
		log:    log.Named("posts"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create publishes a post by author. An attached image is processed and
// uploaded first; it is removed again if the post cannot be written.
func (s *PostService) Create(ctx context.Context, author domain.UserProfile, in NewPost) (domain.Post, error) {
	if author.ID == "" {
		return domain.Post{}, fmt.Errorf("%w: author id is required", domain.ErrInvalidArgument)
	}
	text, err := domain.NormalizeText(in.Text)
	if err != nil {
		return domain.Post{}, err
	}

	now := s.now().UTC()
	post := domain.Post{
		ID:         s.newID(),
		AuthorID:   author.ID,
		AuthorName: author.DisplayName,
		Text:       text,
		CreatedAt:  now,
		LikedBy:    []string{},
	}

	if in.Image != nil {
		url, err := s.upload(ctx, author.ID, now, in.Image)
		if err != nil {
			return domain.Post{}, err
		}
		post.ImageURL = url
		post.ImageAlt = strings.TrimSpace(in.ImageAlt)
	}

	ref := docstore.Ref{Collection: domain.CollectionPosts, ID: post.ID}
	if _, err := s.store.Create(ctx, ref, post.Fields()); err != nil {
		if post.ImageURL != "" {
			s.removeBlob(ctx, post.ImageURL)
		}
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}

	s.log.Info("post created",
		zap.String("post_id", post.ID),
		zap.String("author_id", post.AuthorID),
		zap.Bool("has_image", post.ImageURL != ""),
	)
	return post, nil
}

func (s *PostService) upload(ctx context.Context, authorID string, at time.Time, img *Upload) (string, error) {
	if s.blobs == nil || s.images == nil {
		return "", fmt.Errorf("%w: image uploads are disabled", domain.ErrInvalidArgument)
	}
	data, contentType, err := s.images.Prepare(img.Body, img.ContentType, img.Size)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("posts/%s/%d_%s", authorID, at.UnixMilli(), blobName(img.Name))
	url, err := s.blobs.Put(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return url, nil
}

// Get returns the post with the given id.
func (s *PostService) Get(ctx context.Context, id string) (domain.Post, error) {
	if id == "" {
		return domain.Post{}, fmt.Errorf("%w: post id is required", domain.ErrInvalidArgument)
	}
	doc, err := s.store.Get(ctx, docstore.Ref{Collection: domain.CollectionPosts, ID: id})
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return domain.DecodePost(id, doc.Data)
}

// Delete removes a post on behalf of userID, who must be its author.
func (s *PostService) Delete(ctx context.Context, postID, userID string) error {
	if postID == "" || userID == "" {
		return fmt.Errorf("%w: post id and user id are required", domain.ErrInvalidArgument)
	}
	ref := docstore.Ref{Collection: domain.CollectionPosts, ID: postID}

	var imageURL string
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		post, err := domain.DecodePost(postID, doc.Data)
		if err != nil {
			return err
		}
		if !post.IsOwnedBy(userID) {
			return fmt.Errorf("%w: only the author may delete post %s", domain.ErrUnauthorized, postID)
		}
		imageURL = post.ImageURL
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	if imageURL != "" {
		s.removeBlob(ctx, imageURL)
	}
	s.log.Info("post deleted", zap.String("post_id", postID), zap.String("user_id", userID))
	return nil
}

func (s *PostService) removeBlob(ctx context.Context, url string) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), url); err != nil {
		s.log.Warn("image cleanup failed", zap.String("url", url), zap.Error(err))
	}
}

// blobName reduces an upload's file name to a safe key segment.
func blobName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "image"
	}
	return name
}
