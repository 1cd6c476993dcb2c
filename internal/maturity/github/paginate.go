package github

import (
	"context"

	"github.com/google/go-github/v75/github"
)

// PageFunc fetches one page of a listing. page is 0 for the first page.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, *github.Response, error)

type pageOptions[T any] struct {
	stop     <-chan struct{}
	maxItems int
	past     func(T) bool
}

// PageOption configures a listing.
type PageOption[T any] func(*pageOptions[T])

// StopOn ends the listing after the current page once done is closed.
func StopOn[T any](done <-chan struct{}) PageOption[T] {
	return func(o *pageOptions[T]) { o.stop = done }
}

// MaxItems ends the listing once n items were gathered.
func MaxItems[T any](n int) PageOption[T] {
	return func(o *pageOptions[T]) { o.maxItems = n }
}

// StopPast ends the listing at the first item for which past returns true.
// That item and everything after it are dropped. Listings must be ordered for this to hold.
func StopPast[T any](past func(T) bool) PageOption[T] {
	return func(o *pageOptions[T]) { o.past = past }
}

// Paginate walks every page of a listing through the client. Items gathered
// before a failing page are returned along with the error, so callers can keep
// a partial result. A stopped listing returns ErrCancelled.
func Paginate[T any](ctx context.Context, c *Client, endpoint string, fetch PageFunc[T], opts ...PageOption[T]) ([]T, error) {
	var o pageOptions[T]
	for _, opt := range opts {
		opt(&o)
	}

	var out []T
	page := 0
	for {
		var (
			items []T
			resp  *github.Response
		)
		err := c.Do(ctx, endpoint, func(ctx context.Context) (*github.Response, error) {
			var err error
			items, resp, err = fetch(ctx, page)
			return resp, err
		})
		if err != nil {
			return out, err
		}

		for _, it := range items {
			if o.past != nil && o.past(it) {
				return out, nil
			}
			out = append(out, it)
			if o.maxItems > 0 && len(out) >= o.maxItems {
				return out, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		page = resp.NextPage

		select {
		case <-o.stop:
			return out, ErrCancelled
		default:
		}
	}
}
