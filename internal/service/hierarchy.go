package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/LinhDev610/LilaShop/internal/repository"
)

// expandCategoryIDs returns the given category ids plus every descendant
// category id. The walk uses an explicit queue over the children list so the
// depth of the catalog tree never translates into stack depth.
func expandCategoryIDs(ctx context.Context, categories repository.CategoryRepository, ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		children, err := categories.ListChildren(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list children of category %s: %w", id, err)
		}
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			queue = append(queue, child.ID)
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// ancestorCategoryIDs returns the given category id plus every ancestor id,
// following parent pointers up to the root. The seen set guards against a
// corrupted hierarchy forming a cycle.
func ancestorCategoryIDs(ctx context.Context, categories repository.CategoryRepository, id string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})

	current := id
	for current != "" {
		if _, ok := seen[current]; ok {
			break
		}
		seen[current] = struct{}{}
		out = append(out, current)

		cat, err := categories.GetByID(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("get category %s: %w", current, err)
		}
		if cat.ParentID == nil {
			break
		}
		current = *cat.ParentID
	}

	return out, nil
}

// intersects reports whether the two id slices share at least one element.
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// intersection returns the elements present in both slices, in b's order.
func intersection(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range b {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
