package models

import (
	"strings"
	"time"
)

// ItemKind discriminates the item variants a content record can point to.
type ItemKind string

const (
	ItemKindText  ItemKind = "text"
	ItemKindFile  ItemKind = "file"
	ItemKindImage ItemKind = "image"
	ItemKindVideo ItemKind = "video"
)

// ItemKinds lists every valid kind.
var ItemKinds = []ItemKind{ItemKindText, ItemKindFile, ItemKindImage, ItemKindVideo}

// ParseItemKind normalises raw and reports whether it names a known kind.
func ParseItemKind(raw string) (ItemKind, bool) {
	kind := ItemKind(strings.ToLower(strings.TrimSpace(raw)))
	return kind, kind.Valid()
}

// Valid reports whether k is one of the item kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemKindText, ItemKindFile, ItemKindImage, ItemKindVideo:
		return true
	}
	return false
}

// FileBacked reports whether items of this kind keep a blob in storage.
func (k ItemKind) FileBacked() bool {
	return k == ItemKindFile || k == ItemKindImage
}

// ItemRef identifies one item by kind and id.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

func (r ItemRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// ItemBase carries the fields shared by every item variant.
// CreatedAt is set once; UpdatedAt is refreshed on every write.
type ItemBase struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Base returns the shared fields.
func (b *ItemBase) Base() *ItemBase { return b }

// Item is implemented by *Text, *File, *Image and *Video.
type Item interface {
	Kind() ItemKind
	Base() *ItemBase
}

// Text is an item holding a text body.
type Text struct {
	ItemBase
	Body string `db:"content" json:"content"`
}

// Kind implements Item.
func (*Text) Kind() ItemKind { return ItemKindText }

// File is an item pointing at a stored file.
type File struct {
	ItemBase
	Path string `db:"file" json:"file"`
}

// Kind implements Item.
func (*File) Kind() ItemKind { return ItemKindFile }

// Image is an item pointing at a stored image.
type Image struct {
	ItemBase
	Path string `db:"file" json:"file"`
}

// Kind implements Item.
func (*Image) Kind() ItemKind { return ItemKindImage }

// Video is an item pointing at an external video URL.
type Video struct {
	ItemBase
	URL string `db:"url" json:"url"`
}

// Kind implements Item.
func (*Video) Kind() ItemKind { return ItemKindVideo }

// NewItem returns an empty item of the given kind, or nil for an unknown kind.
func NewItem(kind ItemKind) Item {
	switch kind {
	case ItemKindText:
		return &Text{}
	case ItemKindFile:
		return &File{}
	case ItemKindImage:
		return &Image{}
	case ItemKindVideo:
		return &Video{}
	}
	return nil
}

// RefOf returns the reference for item.
func RefOf(item Item) ItemRef {
	return ItemRef{Kind: item.Kind(), ID: item.Base().ID}
}

// StoredPath returns the blob path for file-backed items.
func StoredPath(item Item) (string, bool) {
	switch v := item.(type) {
	case *File:
		return v.Path, true
	case *Image:
		return v.Path, true
	}
	return "", false
}

// ItemEnvelope is the serialisable tagged form of an Item; exactly one payload is set.
type ItemEnvelope struct {
	Kind  ItemKind `json:"kind"`
	Text  *Text    `json:"text,omitempty"`
	File  *File    `json:"file,omitempty"`
	Image *Image   `json:"image,omitempty"`
	Video *Video   `json:"video,omitempty"`
}

// Envelope wraps item for serialisation.
func Envelope(item Item) ItemEnvelope {
	env := ItemEnvelope{}
	switch v := item.(type) {
	case *Text:
		env.Kind, env.Text = ItemKindText, v
	case *File:
		env.Kind, env.File = ItemKindFile, v
	case *Image:
		env.Kind, env.Image = ItemKindImage, v
	case *Video:
		env.Kind, env.Video = ItemKindVideo, v
	}
	return env
}

// Item unwraps the envelope, returning nil when no payload matches the kind.
func (e ItemEnvelope) Item() Item {
	switch {
	case e.Kind == ItemKindText && e.Text != nil:
		return e.Text
	case e.Kind == ItemKindFile && e.File != nil:
		return e.File
	case e.Kind == ItemKindImage && e.Image != nil:
		return e.Image
	case e.Kind == ItemKindVideo && e.Video != nil:
		return e.Video
	}
	return nil
}

// ParseItemRef parses the "kind:id" form produced by ItemRef.String.
func ParseItemRef(raw string) (ItemRef, bool) {
	kindPart, id, found := strings.Cut(raw, ":")
	if !found || id == "" {
		return ItemRef{}, false
	}
	kind, ok := ParseItemKind(kindPart)
	if !ok {
		return ItemRef{}, false
	}
	return ItemRef{Kind: kind, ID: id}, true
}
