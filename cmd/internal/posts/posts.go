// Package posts reads the portal's feature records (notices, events, lost-and-found
// items, study materials) that messaging and the profile page depend on.
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Collections.
const (
	CollectionNotices   = "notices"
	CollectionEvents    = "events"
	CollectionLostFound = "lostFound"
	CollectionMaterials = "materials"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("item not found")
)

// UntitledPlaceholder replaces a missing title.
const UntitledPlaceholder = "(untitled)"

// Kind tags a Post with the feature it came from.
type Kind string

const (
	KindNotice    Kind = "notice"
	KindEvent     Kind = "event"
	KindLostFound Kind = "lostFound"
	KindMaterial  Kind = "material"
)

// Post is the subset of fields shared by every feature record.
type Post struct {
	ID    string
	Kind  Kind
	Title string
	Date  time.Time
}

// LostFoundItem is one lost-and-found record. OwnerID is the user to contact.
type LostFoundItem struct {
	ID       string
	Type     string // "Lost" or "Found"
	Item     string
	Location string
	Owner    string
	OwnerID  string
	Image    string
	Date     time.Time
}

// LookupItem reads one lost-and-found record.
func LookupItem(ctx context.Context, store docstore.Store, itemID string) (LostFoundItem, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return LostFoundItem{}, fmt.Errorf("posts.LookupItem: %w", ErrInvalidInput)
	}

	d, err := store.Get(ctx, CollectionLostFound, itemID)
	if docstore.IsNotFound(err) {
		return LostFoundItem{}, fmt.Errorf("posts.LookupItem: %w: %s", ErrNotFound, itemID)
	}
	if err != nil {
		return LostFoundItem{}, fmt.Errorf("posts.LookupItem: %w", err)
	}

	return LostFoundItem{
		ID:       d.ID,
		Type:     d.String("type"),
		Item:     d.String("item"),
		Location: d.String("location"),
		Owner:    d.String("owner"),
		OwnerID:  d.String("ownerId"),
		Image:    d.String("image"),
		Date:     parseDate(d.String("date")),
	}, nil
}

// source describes how one collection contributes to a user's posts.
type source struct {
	kind       Kind
	collection string
	field      string
	op         docstore.Op
}

var sources = []source{
	{KindNotice, CollectionNotices, "authorId", docstore.OpEqual},
	{KindLostFound, CollectionLostFound, "ownerId", docstore.OpEqual},
	{KindMaterial, CollectionMaterials, "authorId", docstore.OpEqual},
	{KindEvent, CollectionEvents, "registeredUsers", docstore.OpArrayContains},
}

// MyPosts gathers every record attributed to userID (events: registrations), newest
// first. Records without a usable title get UntitledPlaceholder.
func MyPosts(ctx context.Context, store docstore.Store, userID string) ([]Post, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("posts.MyPosts: %w", ErrInvalidInput)
	}

	results := make([][]Post, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			docs, err := store.Query(gctx, docstore.From(src.collection).Where(src.field, src.op, userID))
			if err != nil {
				return fmt.Errorf("%s: %w", src.collection, err)
			}
			out := make([]Post, 0, len(docs))
			for _, d := range docs {
				out = append(out, decodePost(src.kind, d))
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("posts.MyPosts: %w", err)
	}

	var all []Post
	for _, r := range results {
		all = append(all, r...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date.After(all[j].Date) })
	return all, nil
}

func decodePost(kind Kind, d docstore.Document) Post {
	title := strings.TrimSpace(d.String("title"))
	if title == "" {
		title = strings.TrimSpace(d.String("item"))
	}
	if title == "" {
		title = UntitledPlaceholder
	}
	return Post{ID: d.ID, Kind: kind, Title: title, Date: parseDate(d.String("date"))}
}

// parseDate accepts the plain dates the portal writes (2006-01-02) and full timestamps.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC()
	}
	return docstore.ParseTime(s)
}
