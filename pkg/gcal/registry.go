// Package gcal builds Google Calendar and Tasks services from stored account
// credentials and caches each account's calendar list. Resolving a calendar
// by display name is the common path for the tools, so the list is fetched
// once per account and invalidated when the account reauthorizes.
package gcal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/veslink/calendar-mcp/pkg/accounts"
	"github.com/veslink/calendar-mcp/pkg/providers"
)

type Registry struct {
	mu       sync.Mutex
	provider providers.Provider
	accounts *accounts.Manager
	cache    map[string][]*calendar.CalendarListEntry
	opts     []option.ClientOption
}

// New wires the registry to stored credentials. Extra opts are appended when
// building services, letting tests point at a local API stand-in.
func New(provider providers.Provider, accounts *accounts.Manager, opts ...option.ClientOption) *Registry {
	return &Registry{
		provider: provider,
		accounts: accounts,
		cache:    make(map[string][]*calendar.CalendarListEntry),
		opts:     opts,
	}
}

// Service builds a Calendar service authenticated as account.
func (r *Registry) Service(ctx context.Context, account string) (*calendar.Service, error) {
	tok, err := r.accounts.Tokens(account)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(r.provider.Client(ctx, tok))}, r.opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

// Tasks builds a Tasks service authenticated as account.
func (r *Registry) Tasks(ctx context.Context, account string) (*tasks.Service, error) {
	tok, err := r.accounts.Tokens(account)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(r.provider.Client(ctx, tok))}, r.opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	return svc, nil
}

// Calendars returns the account's calendar list, from cache when available.
func (r *Registry) Calendars(ctx context.Context, account string) ([]*calendar.CalendarListEntry, error) {
	r.mu.Lock()
	if entries, ok := r.cache[account]; ok {
		r.mu.Unlock()
		return entries, nil
	}
	r.mu.Unlock()

	svc, err := r.Service(ctx, account)
	if err != nil {
		return nil, err
	}

	var entries []*calendar.CalendarListEntry
	call := svc.CalendarList.List()
	if err := call.Pages(ctx, func(page *calendar.CalendarList) error {
		entries = append(entries, page.Items...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	r.mu.Lock()
	r.cache[account] = entries
	r.mu.Unlock()
	return entries, nil
}

// Resolve maps a calendar display name or ID to the calendar ID. An exact ID
// match wins, then a case-insensitive summary match.
func (r *Registry) Resolve(ctx context.Context, account, nameOrID string) (string, error) {
	if nameOrID == "" || nameOrID == "primary" {
		return "primary", nil
	}

	entries, err := r.Calendars(ctx, account)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Id == nameOrID {
			return e.Id, nil
		}
	}
	for _, e := range entries {
		if strings.EqualFold(e.Summary, nameOrID) {
			return e.Id, nil
		}
	}
	return "", fmt.Errorf("no calendar named %q for account %s", nameOrID, account)
}

// Invalidate drops the cached calendar list for account.
func (r *Registry) Invalidate(account string) {
	r.mu.Lock()
	delete(r.cache, account)
	r.mu.Unlock()
}
