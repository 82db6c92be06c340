package githubapi

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-github/v75/github"
	"golang.org/x/sync/errgroup"
)

const defaultProfileConcurrency = 4

// Member is one organization member with optional profile details.
type Member struct {
	Login string
	Name  string
	// Email is the member's public profile email, if any.
	Email string
}

// Directory lists organization members through go-github.
type Directory struct {
	client             *github.Client
	profileConcurrency int
}

// NewDirectory creates an organization member directory.
func NewDirectory(client *github.Client, profileConcurrency int) (*Directory, error) {
	if client == nil {
		return nil, fmt.Errorf("github client is required")
	}
	if profileConcurrency <= 0 {
		profileConcurrency = defaultProfileConcurrency
	}
	return &Directory{client: client, profileConcurrency: profileConcurrency}, nil
}

// ListMembers lists every member of org sorted by login.
//
// With withProfiles set, each member's display name and public email are
// looked up. A failed profile lookup leaves those fields empty.
func (d *Directory) ListMembers(ctx context.Context, org string, withProfiles bool) ([]Member, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	opts := &github.ListMembersOptions{ListOptions: github.ListOptions{PerPage: 100}}
	members := make([]Member, 0)
	for {
		users, resp, err := d.client.Organizations.ListMembers(ctx, trimmedOrg, opts)
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", trimmedOrg, err)
		}
		for _, user := range users {
			if login := user.GetLogin(); login != "" {
				members = append(members, Member{Login: login})
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	sort.Slice(members, func(i, j int) bool {
		return strings.ToLower(members[i].Login) < strings.ToLower(members[j].Login)
	})

	if withProfiles {
		d.fillProfiles(ctx, members)
	}
	return members, nil
}

func (d *Directory) fillProfiles(ctx context.Context, members []Member) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.profileConcurrency)
	for i := range members {
		group.Go(func() error {
			user, _, err := d.client.Users.Get(groupCtx, members[i].Login)
			if err != nil {
				return nil
			}
			members[i].Name = strings.TrimSpace(user.GetName())
			members[i].Email = strings.TrimSpace(user.GetEmail())
			return nil
		})
	}
	_ = group.Wait()
}
