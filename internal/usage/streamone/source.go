package streamone

import (
	"context"
	"fmt"
	"strings"

	usagedomain "github.com/railzwaylabs/subsync/internal/usage/domain"
)

// Source adapts the StreamOne subscription listing to the usage Source
// interface. The customer external id is the CSP tenant id.
type Source struct {
	client *Client
}

func NewSource(client *Client) *Source {
	return &Source{client: client}
}

func (s *Source) Kind() usagedomain.SourceKind {
	return usagedomain.SourceStreamOne
}

func (s *Source) ListQuantities(ctx context.Context, tenantID string) ([]usagedomain.Quantity, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", usagedomain.ErrSchemaMismatch)
	}

	raw, err := s.client.SubscriptionsByCustomer(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ParseSubscriptions(raw)
}
