package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/CrestNiraj12/rantfeed/domain"
)

// ReadFunc loads a committed document outside any transaction.
type ReadFunc func(ctx context.Context, ref Ref) (Document, error)

// Write is a buffered mutation of one document. Base is the snapshot the
// transaction read; backends commit only while the stored version still
// equals Base.Version.
type Write struct {
	Ref    Ref
	Base   Document
	Ops    []Op
	Delete bool
}

// Result applies the write's transforms to its base snapshot.
func (w Write) Result() (map[string]any, error) {
	return Apply(w.Base.Data, w.Ops)
}

// Txn is the Tx implementation shared by the backends. It records every
// read (Version 0 for documents found absent) and buffers writes; the
// backend validates and applies them in its commit step.
type Txn struct {
	read       ReadFunc
	reads      map[Ref]Document
	readOrder  []Ref
	writes     map[Ref]*Write
	writeOrder []Ref
}

var _ Tx = (*Txn)(nil)

// NewTxn starts an empty transaction reading through read.
func NewTxn(read ReadFunc) *Txn {
	return &Txn{
		read:   read,
		reads:  make(map[Ref]Document),
		writes: make(map[Ref]*Write),
	}
}

// Get returns the snapshot of ref, reading it once per transaction.
func (t *Txn) Get(ctx context.Context, ref Ref) (Document, error) {
	if doc, ok := t.reads[ref]; ok {
		if doc.Version == 0 {
			return Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
		}
		return cloneDoc(doc), nil
	}

	doc, err := t.read(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		t.record(Document{Ref: ref})
		return Document{}, err
	case err != nil:
		return Document{}, err
	}
	t.record(cloneDoc(doc))
	return doc, nil
}

// Update buffers transforms for a document read earlier in the transaction.
func (t *Txn) Update(ref Ref, ops ...Op) error {
	w, err := t.writeFor(ref)
	if err != nil {
		return err
	}
	if w.Delete {
		return fmt.Errorf("%w: update of %s after delete", domain.ErrInvalidArgument, ref)
	}
	w.Ops = append(w.Ops, ops...)
	return nil
}

// Delete buffers the removal of a document read earlier in the transaction.
func (t *Txn) Delete(ref Ref) error {
	w, err := t.writeFor(ref)
	if err != nil {
		return err
	}
	w.Delete = true
	w.Ops = nil
	return nil
}

// Reads returns every snapshot read, in read order.
func (t *Txn) Reads() []Document {
	out := make([]Document, 0, len(t.readOrder))
	for _, ref := range t.readOrder {
		out = append(out, t.reads[ref])
	}
	return out
}

// Writes returns the buffered writes, in first-write order.
func (t *Txn) Writes() []Write {
	out := make([]Write, 0, len(t.writeOrder))
	for _, ref := range t.writeOrder {
		out = append(out, *t.writes[ref])
	}
	return out
}

func (t *Txn) record(doc Document) {
	t.reads[doc.Ref] = doc
	t.readOrder = append(t.readOrder, doc.Ref)
}

func (t *Txn) writeFor(ref Ref) (*Write, error) {
	base, ok := t.reads[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s must be read before it is written", domain.ErrInvalidArgument, ref)
	}
	if base.Version == 0 {
		return nil, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	if w, ok := t.writes[ref]; ok {
		return w, nil
	}
	w := &Write{Ref: ref, Base: base}
	t.writes[ref] = w
	t.writeOrder = append(t.writeOrder, ref)
	return w, nil
}

func cloneDoc(d Document) Document {
	d.Data = Clone(d.Data)
	return d
}
