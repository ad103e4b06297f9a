package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
)

const categoryColumns = `id, name, description, parent_id, level, created_at, updated_at`

func scanCategory(row rowScanner, c *models.Category) error {
	var parentID sql.NullInt64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &parentID, &c.Level, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.ParentID = nil
	if parentID.Valid {
		id := parentID.Int64
		c.ParentID = &id
	}
	return nil
}

// CreateCategory derives the level from the parent, so a missing parent is
// reported as not found.
func CreateCategory(ctx context.Context, q database.Querier, name, description string, parentID *int64) (*models.Category, error) {
	level := 0
	if parentID != nil {
		parent, err := GetCategory(ctx, q, *parentID)
		if err != nil {
			return nil, err
		}
		level = parent.Level + 1
	}

	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}

	category := &models.Category{}
	query := `
		INSERT INTO categories (name, description, parent_id, level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + categoryColumns

	if err := scanCategory(q.QueryRowContext(ctx, query, name, description, parent, level), category); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("create category: %w", err)
	}

	return category, nil
}

func GetCategory(ctx context.Context, q database.Querier, id int64) (*models.Category, error) {
	category := &models.Category{}

	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	if err := scanCategory(q.QueryRowContext(ctx, query, id), category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	return category, nil
}

func ListCategories(ctx context.Context, q database.Querier) ([]models.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY level, name, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

type CategoryFilter struct {
	// ParentID limits the page to direct children. Nil lists every category.
	ParentID *int64
	Page     int
	PageSize int
}

func ListCategoriesPage(ctx context.Context, q database.Querier, f CategoryFilter) (*OffsetPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}

	clause := ""
	var args []any
	if f.ParentID != nil {
		args = append(args, *f.ParentID)
		clause = " WHERE parent_id = $1"
	}

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM categories%s ORDER BY level, name, id LIMIT $%d OFFSET $%d`,
		categoryColumns, clause, len(args)+1, len(args)+2)
	rows, err := q.QueryContext(ctx, query, append(args, f.PageSize, (f.Page-1)*f.PageSize)...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := scanCategory(rows, &c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(categories, total, f.Page, f.PageSize), nil
}

// BuildCategoryTree nests categories under their parents. Categories whose
// parent is not in the slice become roots. Siblings are ordered by name.
func BuildCategoryTree(categories []models.Category) []models.CategoryNode {
	ids := make(map[int64]bool, len(categories))
	for _, c := range categories {
		ids[c.ID] = true
	}

	children := make(map[int64][]models.Category)
	var roots []models.Category
	for _, c := range categories {
		if c.ParentID != nil && ids[*c.ParentID] && *c.ParentID != c.ID {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		} else {
			roots = append(roots, c)
		}
	}

	var build func(cs []models.Category, seen map[int64]bool) []models.CategoryNode
	build = func(cs []models.Category, seen map[int64]bool) []models.CategoryNode {
		sort.Slice(cs, func(i, j int) bool {
			if cs[i].Name != cs[j].Name {
				return cs[i].Name < cs[j].Name
			}
			return cs[i].ID < cs[j].ID
		})
		nodes := make([]models.CategoryNode, 0, len(cs))
		for _, c := range cs {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			nodes = append(nodes, models.CategoryNode{Category: c, Children: build(children[c.ID], seen)})
		}
		return nodes
	}

	return build(roots, map[int64]bool{})
}
