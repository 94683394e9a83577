package post

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
)

const (
	CapabilityPublishPosts = "publish_posts"
	CapabilityEditPosts    = "edit_posts"

	defaultStatus   = "draft"
	defaultPostType = "post"
)

type PostIntegrationDependencies struct {
	Entities domain.EntityStore
}

type PostIntegration struct {
	entities domain.EntityStore
}

func NewPostIntegration(deps PostIntegrationDependencies) *PostIntegration {
	return &PostIntegration{
		entities: deps.Entities,
	}
}

var postFields = []string{"title", "content", "excerpt", "status", "postType", "author", "categories", "tags", "featuredImage", "galleryImages"}

func (i *PostIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	nodeID := input.Node.ID

	if i.entities == nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, domain.ErrProviderNotConfigured, "Content store is not configured")
	}

	fields := MappedFields(input)

	payload := domain.PostPayload{
		Title:   fields["title"],
		Content: fields["content"],
		Excerpt: fields["excerpt"],
		Status:  fields["status"],
		Type:    fields["postType"],
		Tags:    splitList(fields["tags"]),
		Meta:    map[string]string{},
	}

	if payload.Content == "" {
		payload.Content = input.CombinedInput("\n\n")
	}

	if strings.TrimSpace(payload.Title) == "" && strings.TrimSpace(payload.Content) == "" {
		return domain.NodeResult{}, domain.NewNodeError(nodeID, "Post title or content is required")
	}

	if payload.Status == "" {
		payload.Status = defaultStatus
	}

	if payload.Type == "" {
		payload.Type = defaultPostType
	}

	if author := fields["author"]; author != "" {
		user, err := i.resolveAuthor(ctx, author, payload.Status)
		if err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Invalid post author")
		}
		payload.AuthorID = user.ID
	}

	categoryIDs, err := i.resolveCategories(ctx, splitList(fields["categories"]), input.Node.Bool("createCategories"))
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Failed to resolve categories")
	}
	payload.CategoryIDs = categoryIDs

	if featured := fields["featuredImage"]; featured != "" {
		attachment, err := i.resolveAttachment(ctx, featured)
		if err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Failed to attach featured image")
		}
		payload.FeaturedImageID = attachment.ID
	}

	for _, image := range splitList(fields["galleryImages"]) {
		attachment, err := i.resolveAttachment(ctx, image)
		if err != nil {
			return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Failed to attach gallery image")
		}
		payload.GalleryIDs = appendUnique(payload.GalleryIDs, attachment.ID)
	}

	for key, value := range input.Node.Map("meta") {
		payload.Meta[key] = input.Resolve(domain.StringifyContent(value))
	}

	created, err := i.entities.CreatePost(ctx, payload)
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(nodeID, err, "Failed to create post")
	}

	log.Info().Str("node_id", nodeID).Int64("post_id", created.ID).Msg("Post created")

	return domain.NewNodeResult(domain.NodeTypePost, map[string]any{
		"post_id":  created.ID,
		"post_url": created.URL,
		"title":    payload.Title,
		"status":   payload.Status,
	}), nil
}

// MappedFields collects the post fields from the node's direct keys, then
// applies fieldMappings on top. Every value is template resolved.
func MappedFields(input domain.NodeInput) map[string]string {
	fields := map[string]string{}

	for _, key := range postFields {
		if value, ok := input.Node.Data[key]; ok && value != nil {
			fields[key] = stringValue(value)
		}
	}

	for key, value := range input.Node.Map("fieldMappings") {
		fields[key] = stringValue(value)
	}

	for key, value := range fields {
		fields[key] = strings.TrimSpace(input.Resolve(value))
	}

	return fields
}

func (i *PostIntegration) resolveAuthor(ctx context.Context, reference, status string) (domain.User, error) {
	var (
		user domain.User
		err  error
	)

	switch {
	case isNumeric(reference):
		id, _ := strconv.ParseInt(reference, 10, 64)
		user, err = i.entities.GetUserByID(ctx, id)
	case strings.Contains(reference, "@"):
		user, err = i.entities.GetUserByEmail(ctx, reference)
	default:
		user, err = i.entities.GetUserByLogin(ctx, reference)
	}

	if err != nil {
		return domain.User{}, fmt.Errorf("author %s: %w", reference, err)
	}

	required := CapabilityEditPosts
	if status == "publish" {
		required = CapabilityPublishPosts
	}

	if !user.Can(required) {
		return domain.User{}, fmt.Errorf("user %s lacks the %s capability", user.Login, required)
	}

	return user, nil
}

// resolveCategories maps each reference to an existing category id, trying
// numeric id, exact name and slug in turn. Missing categories are created
// when create is set and skipped otherwise.
func (i *PostIntegration) resolveCategories(ctx context.Context, references []string, create bool) ([]int64, error) {
	var ids []int64

	for _, reference := range references {
		category, err := i.findCategory(ctx, reference)

		if errors.Is(err, domain.ErrEntityNotFound) && create && !isNumeric(reference) {
			category, err = i.entities.CreateCategory(ctx, reference, slug.Make(reference))
		}

		if errors.Is(err, domain.ErrEntityNotFound) {
			log.Warn().Str("category", reference).Msg("Category not found, skipping")
			continue
		}

		if err != nil {
			return nil, err
		}

		ids = appendUnique(ids, category.ID)
	}

	return ids, nil
}

func (i *PostIntegration) findCategory(ctx context.Context, reference string) (domain.Category, error) {
	if isNumeric(reference) {
		id, _ := strconv.ParseInt(reference, 10, 64)
		return i.entities.GetCategory(ctx, id)
	}

	category, err := i.entities.FindCategory(ctx, domain.CategoryLookupName, reference)
	if !errors.Is(err, domain.ErrEntityNotFound) {
		return category, err
	}

	return i.entities.FindCategory(ctx, domain.CategoryLookupSlug, slug.Make(reference))
}

func (i *PostIntegration) resolveAttachment(ctx context.Context, reference string) (domain.Attachment, error) {
	if isNumeric(reference) {
		id, _ := strconv.ParseInt(reference, 10, 64)
		return i.entities.GetAttachment(ctx, id)
	}

	if !strings.HasPrefix(reference, "http://") && !strings.HasPrefix(reference, "https://") {
		return domain.Attachment{}, fmt.Errorf("image reference %q is neither an attachment id nor a URL", reference)
	}

	return i.entities.ImportAttachment(ctx, reference)
}

func stringValue(value any) string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, domain.StringifyContent(item))
		}
		return strings.Join(parts, ",")
	}

	return domain.StringifyContent(value)
}

func splitList(value string) []string {
	var items []string

	for _, item := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '\n' }) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func isNumeric(value string) bool {
	_, err := strconv.ParseInt(value, 10, 64)

	return err == nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}

	return append(ids, id)
}
