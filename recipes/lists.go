package recipes

import (
	"context"
)

// Lists caches shopping-list summaries per user and list details per list.
type Lists struct {
	views *Views

	SummaryView View
	DetailView  View
}

func newLists(views *Views, ttl TTLs) *Lists {
	return &Lists{
		views:       views,
		SummaryView: View{Name: "user_lists", Key: UserListsKey, TTL: ttl.UserLists},
		DetailView:  View{Name: "list_detail", Key: ListDetailKey, TTL: ttl.Detail},
	}
}

// UserLists decodes the cached list summaries of a user into dst.
func (l *Lists) UserLists(ctx context.Context, userID int64, dst any) (bool, error) {
	return l.views.Get(ctx, l.SummaryView, userID, dst)
}

// SetUserLists caches the list summaries of a user.
func (l *Lists) SetUserLists(ctx context.Context, userID int64, summaries any) error {
	return l.views.Set(ctx, l.SummaryView, userID, summaries)
}

// InvalidateUserLists drops the cached list summaries of a user.
func (l *Lists) InvalidateUserLists(ctx context.Context, userID int64) {
	l.views.Invalidate(ctx, l.SummaryView, userID)
}

// Detail decodes the cached detail of a list into dst.
func (l *Lists) Detail(ctx context.Context, listID int64, dst any) (bool, error) {
	return l.views.Get(ctx, l.DetailView, listID, dst)
}

// SetDetail caches the detail of a list.
func (l *Lists) SetDetail(ctx context.Context, listID int64, detail any) error {
	return l.views.Set(ctx, l.DetailView, listID, detail)
}

// InvalidateDetail drops the cached detail of a list.
func (l *Lists) InvalidateDetail(ctx context.Context, listID int64) {
	l.views.Invalidate(ctx, l.DetailView, listID)
}

// ListCreated invalidates the owner's summaries.
func (l *Lists) ListCreated(ctx context.Context, userID int64) {
	l.InvalidateUserLists(ctx, userID)
}

// ListDeleted invalidates the owner's summaries and the list detail.
func (l *Lists) ListDeleted(ctx context.Context, userID, listID int64) {
	l.InvalidateUserLists(ctx, userID)
	l.InvalidateDetail(ctx, listID)
}

// ItemsChanged handles a product added, removed or re-quantified: both the
// detail and the owner's summaries change.
func (l *Lists) ItemsChanged(ctx context.Context, userID, listID int64) {
	l.InvalidateDetail(ctx, listID)
	l.InvalidateUserLists(ctx, userID)
}

// PurchasedToggled invalidates the list detail only. The caller must answer
// the toggle with ReadThrough and must not re-populate the detail, so a
// concurrent toggle never sees a cached copy.
func (l *Lists) PurchasedToggled(ctx context.Context, _ int64, listID int64) {
	l.InvalidateDetail(ctx, listID)
}
