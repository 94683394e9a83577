package domain

import "context"

type User struct {
	ID           int64    `json:"id"`
	Login        string   `json:"login"`
	Email        string   `json:"email"`
	Capabilities []string `json:"capabilities"`
}

func (u User) Can(capability string) bool {
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}

	return false
}

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Attachment struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	SourceURL string `json:"source_url,omitempty"`
}

type PostPayload struct {
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	Excerpt         string            `json:"excerpt,omitempty"`
	Status          string            `json:"status"`
	Type            string            `json:"type"`
	AuthorID        int64             `json:"author_id,omitempty"`
	CategoryIDs     []int64           `json:"category_ids,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	FeaturedImageID int64             `json:"featured_image_id,omitempty"`
	GalleryIDs      []int64           `json:"gallery_ids,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
}

type CreatedPost struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

type CategoryLookupField string

const (
	CategoryLookupName CategoryLookupField = "name"
	CategoryLookupSlug CategoryLookupField = "slug"
)

// EntityStore is the host content store used by post nodes. Lookups return
// ErrEntityNotFound when nothing matches.
type EntityStore interface {
	CreatePost(ctx context.Context, payload PostPayload) (CreatedPost, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByLogin(ctx context.Context, login string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	FindCategory(ctx context.Context, field CategoryLookupField, value string) (Category, error)
	CreateCategory(ctx context.Context, name, slug string) (Category, error)
	GetAttachment(ctx context.Context, id int64) (Attachment, error)
	ImportAttachment(ctx context.Context, sourceURL string) (Attachment, error)
}
