package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathieu-neron/toptabled/internal/model"
)

// MaxPageSize caps a single ranged select.
const MaxPageSize = 500

const itemColumns = `id::text, name, google_maps_link, image_url, vote_count, weekly_vote_increase,
		       date_added, status, area_tag, cuisine_tag, awards_tag, dietary_tag`

// ItemQuery describes an ordered, range-paginated select over restaurants.
type ItemQuery struct {
	Predicate model.FacetPredicate
	// AllStatuses disables the approved-only gate (elevated identities).
	AllStatuses bool
	Offset      int
	// Limit <= 0 means no limit.
	Limit int
}

type ItemRepo struct {
	pool *pgxpool.Pool
}

func NewItemRepo(pool *pgxpool.Pool) *ItemRepo {
	return &ItemRepo{pool: pool}
}

// buildItemQuery compiles q into SQL. A category with a single tag becomes an
// equality filter, several tags become an inclusion list.
func buildItemQuery(q ItemQuery) (string, []any) {
	var (
		where []string
		args  []any
	)

	if !q.AllStatuses {
		args = append(args, string(model.StatusApproved))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	for _, clause := range q.Predicate.Clauses {
		if !model.ValidCategory(clause.Category) || len(clause.Tags) == 0 {
			continue
		}
		col := clause.Category.Column()
		if len(clause.Tags) == 1 {
			args = append(args, clause.Tags[0])
			where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
		} else {
			args = append(args, clause.Tags)
			where = append(where, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(itemColumns)
	sb.WriteString(" FROM restaurants")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY vote_count DESC, date_added ASC, id ASC")

	if q.Limit > 0 {
		limit := q.Limit
		if limit > MaxPageSize {
			limit = MaxPageSize
		}
		args = append(args, limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	return sb.String(), args
}

// ListItems runs an ordered select (vote_count descending).
func (r *ItemRepo) ListItems(ctx context.Context, q ItemQuery) ([]model.Item, error) {
	query, args := buildItemQuery(q)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem returns a single item regardless of status.
func (r *ItemRepo) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM restaurants WHERE id::text = $1`, id)
	it, err := scanItem(row)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItems returns the items with the given ids, in no particular order.
// Unknown ids are skipped.
func (r *ItemRepo) GetItems(ctx context.Context, ids []string) ([]model.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM restaurants WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertItem stores a submission and returns it with its generated id and
// creation time. Counters always start at zero.
func (r *ItemRepo) InsertItem(ctx context.Context, it model.Item) (model.Item, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO restaurants (name, google_maps_link, image_url, status,
		                         area_tag, cuisine_tag, awards_tag, dietary_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+itemColumns,
		it.Name, it.ExternalLink, it.ImageURL, string(it.Status),
		nullable(it.Tag(model.CategoryArea)),
		nullable(it.Tag(model.CategoryCuisine)),
		nullable(it.Tag(model.CategoryAwards)),
		nullable(it.Tag(model.CategoryDietary)),
	)
	return scanItem(row)
}

func scanItem(row pgx.Row) (model.Item, error) {
	var (
		it                             model.Item
		status                         string
		area, cuisine, awards, dietary *string
	)
	err := row.Scan(
		&it.ID, &it.Name, &it.ExternalLink, &it.ImageURL, &it.VoteCount, &it.WeeklyDelta,
		&it.CreatedAt, &status, &area, &cuisine, &awards, &dietary,
	)
	if err != nil {
		return model.Item{}, err
	}

	it.Status = model.Status(status)
	it.Facets = make(map[model.Category]string, len(model.Categories))
	for c, v := range map[model.Category]*string{
		model.CategoryArea:    area,
		model.CategoryCuisine: cuisine,
		model.CategoryAwards:  awards,
		model.CategoryDietary: dietary,
	} {
		if v != nil && *v != "" {
			it.Facets[c] = *v
		}
	}
	return it, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
