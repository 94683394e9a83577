package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flowbaker/autoflow/pkg/domain"
)

// EntityStore is an in-process content store for post nodes. It serves the
// CLI and tests when no host CMS is attached.
type EntityStore struct {
	mu sync.RWMutex

	siteURL     string
	nextID      int64
	users       map[int64]domain.User
	categories  map[int64]domain.Category
	attachments map[int64]domain.Attachment
	posts       map[int64]domain.PostPayload
}

type EntityStoreOpts struct {
	SiteURL string
}

func NewEntityStore(opts EntityStoreOpts) *EntityStore {
	siteURL := strings.TrimRight(opts.SiteURL, "/")
	if siteURL == "" {
		siteURL = "http://localhost"
	}

	return &EntityStore{
		siteURL:     siteURL,
		users:       map[int64]domain.User{},
		categories:  map[int64]domain.Category{},
		attachments: map[int64]domain.Attachment{},
		posts:       map[int64]domain.PostPayload{},
	}
}

func (s *EntityStore) AddUser(user domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == 0 {
		user.ID = s.allocateID()
	} else if user.ID > s.nextID {
		s.nextID = user.ID
	}

	s.users[user.ID] = user

	return user
}

func (s *EntityStore) AddCategory(category domain.Category) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == 0 {
		category.ID = s.allocateID()
	} else if category.ID > s.nextID {
		s.nextID = category.ID
	}

	s.categories[category.ID] = category

	return category
}

func (s *EntityStore) AddAttachment(attachment domain.Attachment) domain.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attachment.ID == 0 {
		attachment.ID = s.allocateID()
	} else if attachment.ID > s.nextID {
		s.nextID = attachment.ID
	}

	s.attachments[attachment.ID] = attachment

	return attachment
}

func (s *EntityStore) Post(id int64) (domain.PostPayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]

	return post, ok
}

func (s *EntityStore) CreatePost(ctx context.Context, payload domain.PostPayload) (domain.CreatedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocateID()
	s.posts[id] = payload

	return domain.CreatedPost{
		ID:  id,
		URL: fmt.Sprintf("%s/?p=%d", s.siteURL, id),
	}, nil
}

func (s *EntityStore) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %d", domain.ErrEntityNotFound, id)
	}

	return user, nil
}

func (s *EntityStore) GetUserByLogin(ctx context.Context, login string) (domain.User, error) {
	return s.findUser(func(u domain.User) bool { return u.Login == login }, login)
}

func (s *EntityStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findUser(func(u domain.User) bool { return strings.EqualFold(u.Email, email) }, email)
}

func (s *EntityStore) findUser(match func(domain.User) bool, label string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if match(user) {
			return user, nil
		}
	}

	return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrEntityNotFound, label)
}

func (s *EntityStore) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return domain.Category{}, fmt.Errorf("%w: category %d", domain.ErrEntityNotFound, id)
	}

	return category, nil
}

func (s *EntityStore) FindCategory(ctx context.Context, field domain.CategoryLookupField, value string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, category := range s.categories {
		switch field {
		case domain.CategoryLookupName:
			if category.Name == value {
				return category, nil
			}
		case domain.CategoryLookupSlug:
			if category.Slug == value {
				return category, nil
			}
		}
	}

	return domain.Category{}, fmt.Errorf("%w: category %s=%s", domain.ErrEntityNotFound, field, value)
}

func (s *EntityStore) CreateCategory(ctx context.Context, name, slug string) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, category := range s.categories {
		if category.Slug == slug {
			return domain.Category{}, fmt.Errorf("category with slug %s already exists", slug)
		}
	}

	category := domain.Category{ID: s.allocateID(), Name: name, Slug: slug}
	s.categories[category.ID] = category

	return category, nil
}

func (s *EntityStore) GetAttachment(ctx context.Context, id int64) (domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attachment, ok := s.attachments[id]
	if !ok {
		return domain.Attachment{}, fmt.Errorf("%w: attachment %d", domain.ErrEntityNotFound, id)
	}

	return attachment, nil
}

// ImportAttachment registers sourceURL as an attachment. Importing the same
// URL twice returns the existing attachment.
func (s *EntityStore) ImportAttachment(ctx context.Context, sourceURL string) (domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, attachment := range s.attachments {
		if attachment.SourceURL == sourceURL {
			return attachment, nil
		}
	}

	id := s.allocateID()
	attachment := domain.Attachment{
		ID:        id,
		URL:       fmt.Sprintf("%s/media/%d", s.siteURL, id),
		SourceURL: sourceURL,
	}
	s.attachments[id] = attachment

	return attachment, nil
}

func (s *EntityStore) allocateID() int64 {
	s.nextID++

	return s.nextID
}
