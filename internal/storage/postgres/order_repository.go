package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

const orderColumns = `
	id, number, order_key, status, payment_method, billing_country, currency,
	total_minor, tax_minor, customer, subscription_ids,
	vendor_order_id, attempt_counter, vendor_subscription_id, strong_auth_pending,
	payment_plan_campaign, bank_method, version, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	customer, subs, err := encodeOrderDocs(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.Number, order.Key, string(order.Status), string(order.PaymentMethod),
		order.BillingCountry, order.Currency, order.TotalMinor, order.TaxMinor, customer, subs,
		order.Meta.VendorOrderID, order.Meta.AttemptCounter, order.Meta.VendorSubscriptionID,
		order.Meta.StrongAuthPending, order.Meta.PaymentPlanCampaign, order.Meta.BankMethod,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err = upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Save обновляет заказ при совпадении версии и синхронизирует позиции.
// Маркеры доставки и возврата пишутся один раз: уже выставленное значение в базе не перетирается.
func (r *orderRepository) Save(order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	customer, subs, err := encodeOrderDocs(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET number = $1,
		    order_key = $2,
		    status = $3,
		    payment_method = $4,
		    billing_country = $5,
		    currency = $6,
		    total_minor = $7,
		    tax_minor = $8,
		    customer = $9,
		    subscription_ids = $10,
		    vendor_order_id = $11,
		    attempt_counter = $12,
		    vendor_subscription_id = $13,
		    strong_auth_pending = $14,
		    payment_plan_campaign = $15,
		    bank_method = $16,
		    version = version + 1,
		    updated_at = $17
		WHERE id = $18
		  AND version = $19
	`,
		order.Number, order.Key, string(order.Status), string(order.PaymentMethod),
		order.BillingCountry, order.Currency, order.TotalMinor, order.TaxMinor, customer, subs,
		order.Meta.VendorOrderID, order.Meta.AttemptCounter, order.Meta.VendorSubscriptionID,
		order.Meta.StrongAuthPending, order.Meta.PaymentPlanCampaign, order.Meta.BankMethod,
		order.UpdatedAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := orderExistsTx(ctx, tx, order.ID)
		switch {
		case existsErr != nil:
			err = existsErr
		case !exists:
			err = domain.ErrOrderNotFound
		default:
			err = domain.ErrOrderVersionConflict
		}
		return err
	}

	if err = deleteMissingItems(ctx, tx, order); err != nil {
		return err
	}
	if err = upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func (r *orderRepository) ListStrongAuthPending(limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE strong_auth_pending AND status = 'pending'
		ORDER BY created_at ASC, id ASC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list strong auth orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if orders[i].Items, err = r.loadItems(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                domain.Order
		status, method       string
		customerDoc, subsDoc []byte
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.Key, &status, &method, &order.BillingCountry, &order.Currency,
		&order.TotalMinor, &order.TaxMinor, &customerDoc, &subsDoc,
		&order.Meta.VendorOrderID, &order.Meta.AttemptCounter, &order.Meta.VendorSubscriptionID,
		&order.Meta.StrongAuthPending, &order.Meta.PaymentPlanCampaign, &order.Meta.BankMethod,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)

	if err := json.Unmarshal(customerDoc, &order.Customer); err != nil {
		return domain.Order{}, fmt.Errorf("decode customer of order %s: %w", order.ID, err)
	}
	if err := json.Unmarshal(subsDoc, &order.SubscriptionIDs); err != nil {
		return domain.Order{}, fmt.Errorf("decode subscriptions of order %s: %w", order.ID, err)
	}
	if len(order.SubscriptionIDs) == 0 {
		order.SubscriptionIDs = nil
	}
	return order, nil
}

func encodeOrderDocs(order domain.Order) ([]byte, []byte, error) {
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return nil, nil, fmt.Errorf("encode customer: %w", err)
	}
	ids := order.SubscriptionIDs
	if ids == nil {
		ids = []string{}
	}
	subs, err := json.Marshal(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("encode subscription ids: %w", err)
	}
	return customer, subs, nil
}

func upsertItems(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for pos, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_line_items (
				order_id, id, position, type, name, article_number, quantity,
				unit_price_ex_vat_minor, vat_percent, delivered_at, credited_at,
				vendor_row_number, vendor_invoice_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (order_id, id) DO UPDATE
			SET position = EXCLUDED.position,
			    type = EXCLUDED.type,
			    name = EXCLUDED.name,
			    article_number = EXCLUDED.article_number,
			    quantity = EXCLUDED.quantity,
			    unit_price_ex_vat_minor = EXCLUDED.unit_price_ex_vat_minor,
			    vat_percent = EXCLUDED.vat_percent,
			    delivered_at = COALESCE(order_line_items.delivered_at, EXCLUDED.delivered_at),
			    credited_at = COALESCE(order_line_items.credited_at, EXCLUDED.credited_at),
			    vendor_row_number = EXCLUDED.vendor_row_number,
			    vendor_invoice_id = CASE
			        WHEN order_line_items.vendor_invoice_id = '' THEN EXCLUDED.vendor_invoice_id
			        ELSE order_line_items.vendor_invoice_id
			    END
		`,
			order.ID, item.ID, pos, string(item.Type), item.Name, item.ArticleNumber, item.Quantity,
			item.UnitPriceExVatMinor, item.VatPercent, item.DeliveredAt, item.CreditedAt,
			item.VendorRowNumber, item.VendorInvoiceID,
		); err != nil {
			return fmt.Errorf("upsert line item %s: %w", item.ID, err)
		}
	}
	return nil
}

// deleteMissingItems удаляет позиции, которых больше нет в заказе.
func deleteMissingItems(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM order_line_items WHERE order_id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("list line items: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan line item id: %w", err)
		}
		if _, ok := order.Item(id); !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close line item rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate line item ids: %w", err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_line_items WHERE order_id = $1 AND id = $2`, order.ID, id); err != nil {
			return fmt.Errorf("delete line item %s: %w", id, err)
		}
	}
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, name, article_number, quantity, unit_price_ex_vat_minor, vat_percent,
		       delivered_at, credited_at, vendor_row_number, vendor_invoice_id
		FROM order_line_items
		WHERE order_id = $1
		ORDER BY position ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			item                domain.LineItem
			kind                string
			delivered, credited sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &kind, &item.Name, &item.ArticleNumber, &item.Quantity,
			&item.UnitPriceExVatMinor, &item.VatPercent, &delivered, &credited,
			&item.VendorRowNumber, &item.VendorInvoiceID,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		item.Type = domain.LineItemType(kind)
		if delivered.Valid {
			t := delivered.Time.UTC()
			item.DeliveredAt = &t
		}
		if credited.Valid {
			t := credited.Time.UTC()
			item.CreditedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func orderExistsTx(ctx context.Context, tx *sql.Tx, orderID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
