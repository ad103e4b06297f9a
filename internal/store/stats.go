package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
)

const popularProductsLimit = 10

// OrderStats counts only orders that were paid and not cancelled.
func OrderStats(ctx context.Context, q database.Querier, since time.Time) (*models.OrderStats, error) {
	stats := &models.OrderStats{Since: since, PopularProducts: []models.ProductSales{}}

	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(ROUND(AVG(total_amount), 2), 0)
		FROM orders
		WHERE created_at >= $1
		  AND status <> 'cancelled'
		  AND payment_status = 'paid'`,
		since).Scan(&stats.OrderCount, &stats.TotalRevenue, &stats.AverageOrderValue)
	if err != nil {
		return nil, fmt.Errorf("order totals: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT p.id, p.name, SUM(oi.quantity), SUM(oi.quantity * oi.price_at_time)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE o.created_at >= $1
		  AND o.status <> 'cancelled'
		  AND o.payment_status = 'paid'
		GROUP BY p.id, p.name
		ORDER BY SUM(oi.quantity) DESC, p.id
		LIMIT $2`,
		since, popularProductsLimit)
	if err != nil {
		return nil, fmt.Errorf("popular products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ps models.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.TotalQuantity, &ps.TotalRevenue); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		stats.PopularProducts = append(stats.PopularProducts, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stats, nil
}
