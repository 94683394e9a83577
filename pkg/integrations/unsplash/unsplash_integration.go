package unsplash

import (
	"context"
	"strings"

	"github.com/flowbaker/autoflow/pkg/domain"
)

type UnsplashIntegrationDependencies struct {
	Images domain.ImageSearchProvider
}

type UnsplashIntegration struct {
	images domain.ImageSearchProvider
}

func NewUnsplashIntegration(deps UnsplashIntegrationDependencies) *UnsplashIntegration {
	return &UnsplashIntegration{
		images: deps.Images,
	}
}

func (i *UnsplashIntegration) Execute(ctx context.Context, input domain.NodeInput) (domain.NodeResult, error) {
	term := strings.TrimSpace(input.ResolveString("searchTerm"))
	if term == "" {
		term = strings.TrimSpace(input.CombinedInput(" "))
	}

	if term == "" {
		return domain.NodeResult{}, domain.NewNodeError(input.Node.ID, "Search term is required")
	}

	if i.images == nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, domain.ErrProviderNotConfigured, "Unsplash is not configured")
	}

	imageURL, err := i.images.Search(ctx, domain.ImageSearchRequest{
		Term:        term,
		Orientation: input.Node.String("orientation"),
		Size:        input.Node.StringOr("imageSize", "regular"),
		Random:      input.Node.Bool("randomResult"),
	})
	if err != nil {
		return domain.NodeResult{}, domain.WrapNodeError(input.Node.ID, err, "Failed to search images")
	}

	return domain.NewNodeResult(domain.NodeTypeUnsplash, imageURL), nil
}
