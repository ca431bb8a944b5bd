package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/xaenox/shop-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("PostgreSQL storage ready",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// User methods

const userColumns = `id, first_name, last_name, phone, channel_address, role, parent_id, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		u       models.User
		address sql.NullString
		parent  sql.NullInt64
		role    string
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Phone, &address, &role, &parent, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	u.ChannelAddress = address.String
	u.ParentID = parent.Int64
	u.Role = models.Role(role)
	return &u, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresStorage) GetUserByChannelAddress(ctx context.Context, address string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE channel_address = $1`, address)
	return scanUser(row)
}

func (s *PostgresStorage) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE phone = $1 AND (channel_address IS NULL OR channel_address = '')
		ORDER BY id LIMIT 1`, phone)
	return scanUser(row)
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (first_name, last_name, phone, channel_address, role, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		user.FirstName, user.LastName, user.Phone, nullString(user.ChannelAddress), string(user.Role), nullInt64(user.ParentID),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateChannelAddress(ctx context.Context, userID int64, address string) error {
	return s.execOne(ctx, `UPDATE users SET channel_address = $1 WHERE id = $2`, nullString(address), userID)
}

func (s *PostgresStorage) GrantSubscription(ctx context.Context, sub *models.Subscription) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (user_id, plan, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		sub.UserID, sub.Plan, sub.ExpiresAt,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("error granting subscription: %w", err)
	}
	return nil
}

// Settings methods

const settingsColumns = `seller_id, credential, welcome_template, pishtaz_enabled, post_enabled, courier_enabled, free_enabled, free_threshold`

func scanSettings(row interface{ Scan(...any) error }) (*models.SellerSettings, error) {
	var st models.SellerSettings
	err := row.Scan(&st.SellerID, &st.Credential, &st.WelcomeTemplate,
		&st.Shipping.PishtazEnabled, &st.Shipping.PostEnabled, &st.Shipping.CourierEnabled,
		&st.Shipping.FreeEnabled, &st.Shipping.FreeThreshold)
	if err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (s *PostgresStorage) ListSellerSettings(ctx context.Context) ([]*models.SellerSettings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+settingsColumns+` FROM seller_settings WHERE credential <> '' ORDER BY seller_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying seller settings: %w", err)
	}
	defer rows.Close()

	var result []*models.SellerSettings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning seller settings: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) GetSellerSettings(ctx context.Context, sellerID int64) (*models.SellerSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM seller_settings WHERE seller_id = $1`, sellerID)
	st, err := scanSettings(row)
	if errors.Is(err, ErrNotFound) {
		return &models.SellerSettings{SellerID: sellerID, Shipping: models.DefaultShippingSettings()}, nil
	}
	return st, err
}

func (s *PostgresStorage) ListAIProviders(ctx context.Context) ([]models.AIProviderSetting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT provider, is_active, token, workspace_id FROM ai_providers ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("error querying ai providers: %w", err)
	}
	defer rows.Close()

	var result []models.AIProviderSetting
	for rows.Next() {
		var p models.AIProviderSetting
		if err := rows.Scan(&p.Provider, &p.Active, &p.Token, &p.WorkspaceID); err != nil {
			return nil, fmt.Errorf("error scanning ai provider: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Catalog methods

const productColumns = `id, seller_id, name, description, price, stock, image_url, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *PostgresStorage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (s *PostgresStorage) SearchProducts(ctx context.Context, sellerID int64, query string) ([]*models.Product, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE seller_id = $1 AND active AND (name ILIKE $2 OR description ILIKE $2)
		ORDER BY id`, sellerID, pattern)
	if err != nil {
		return nil, fmt.Errorf("error searching products: %w", err)
	}
	defer rows.Close()

	var result []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *PostgresStorage) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`, quantity, productID)
	if err != nil {
		return fmt.Errorf("error decrementing stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w for product %d", ErrInsufficientStock, productID)
	}
	return nil
}

func (s *PostgresStorage) RestoreStock(ctx context.Context, productID int64, quantity int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET stock = stock + $1 WHERE id = $2`, quantity, productID)
	if err != nil {
		return fmt.Errorf("error restoring stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Cart methods

func (s *PostgresStorage) GetCart(ctx context.Context, userID int64) ([]*models.CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, product_id, seller_id, name, quantity, unit_price, created_at
		FROM cart_items WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying cart: %w", err)
	}
	defer rows.Close()

	var items []*models.CartItem
	for rows.Next() {
		it := &models.CartItem{}
		if err := rows.Scan(&it.ID, &it.UserID, &it.ProductID, &it.SellerID, &it.Name, &it.Quantity, &it.UnitPrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PostgresStorage) AddCartItem(ctx context.Context, item *models.CartItem) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, seller_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, unit_price = EXCLUDED.unit_price
		RETURNING id, created_at`,
		item.UserID, item.ProductID, item.SellerID, item.Name, item.Quantity, item.UnitPrice,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding cart item: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ClearCart(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("error clearing cart: %w", err)
	}
	return nil
}

// Address methods

const addressColumns = `id, user_id, title, full_address, postal_code, is_default, created_at`

func scanAddress(row interface{ Scan(...any) error }) (*models.Address, error) {
	var a models.Address
	if err := row.Scan(&a.ID, &a.UserID, &a.Title, &a.FullAddress, &a.PostalCode, &a.IsDefault, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *PostgresStorage) ListAddresses(ctx context.Context, userID int64) ([]*models.Address, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying addresses: %w", err)
	}
	defer rows.Close()

	var result []*models.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning address: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStorage) CreateAddress(ctx context.Context, address *models.Address) error {
	if address.IsDefault {
		if _, err := s.db.ExecContext(ctx, `UPDATE addresses SET is_default = FALSE WHERE user_id = $1`, address.UserID); err != nil {
			return fmt.Errorf("error demoting default address: %w", err)
		}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO addresses (user_id, title, full_address, postal_code, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		address.UserID, address.Title, address.FullAddress, address.PostalCode, address.IsDefault,
	).Scan(&address.ID, &address.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating address: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetDefaultAddress(ctx context.Context, userID int64) (*models.Address, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id = $1
		ORDER BY is_default DESC, id DESC LIMIT 1`, userID)
	return scanAddress(row)
}

// Order methods

func (s *PostgresStorage) CreateOrder(ctx context.Context, order *models.Order) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (buyer_id, seller_id, address_id, total_amount, shipping_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		order.BuyerID, order.SellerID, nullInt64(order.AddressID), order.TotalAmount, order.ShippingMethod, string(order.Status),
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating order: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		item.OrderID, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("error creating order item: %w", err)
	}
	return nil
}

// Transaction methods

func (s *PostgresStorage) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, approver_id, amount, reference_id, transaction_date,
			transaction_time, account_source, payment_method, receipt_image_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		tx.UserID, nullInt64(tx.ApproverID), tx.Amount, tx.ReferenceID, tx.TransactionDate,
		tx.TransactionTime, tx.AccountSource, tx.PaymentMethod, tx.ReceiptImageURL, string(tx.Status),
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating transaction: %w", err)
	}
	return nil
}

func (s *PostgresStorage) FindTransactionByReference(ctx context.Context, userID int64, referenceID string) (*models.Transaction, error) {
	var (
		tx       models.Transaction
		approver sql.NullInt64
		status   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, approver_id, amount, reference_id, transaction_date, transaction_time,
			account_source, payment_method, receipt_image_url, status, created_at
		FROM transactions WHERE user_id = $1 AND reference_id = $2
		ORDER BY id LIMIT 1`, userID, referenceID,
	).Scan(&tx.ID, &tx.UserID, &approver, &tx.Amount, &tx.ReferenceID, &tx.TransactionDate, &tx.TransactionTime,
		&tx.AccountSource, &tx.PaymentMethod, &tx.ReceiptImageURL, &status, &tx.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	tx.ApproverID = approver.Int64
	tx.Status = models.TransactionStatus(status)
	return &tx, nil
}

func (s *PostgresStorage) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND status = $2`, userID, string(models.TransactionApproved),
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("error reading balance: %w", err)
	}
	return balance, nil
}

// FAQ methods

func (s *PostgresStorage) ListFAQs(ctx context.Context, authorID int64, limit int) ([]*models.FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, author_id, question, answer, position, active, created_at
		FROM faqs WHERE author_id = $1 AND active
		ORDER BY position, id
		LIMIT NULLIF($2, 0)`, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying faqs: %w", err)
	}
	defer rows.Close()

	var result []*models.FAQ
	for rows.Next() {
		f := &models.FAQ{}
		if err := rows.Scan(&f.ID, &f.AuthorID, &f.Question, &f.Answer, &f.Position, &f.Active, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning faq: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// Message methods

func (s *PostgresStorage) MessageExists(ctx context.Context, upstreamID string, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE upstream_id = $1 AND user_id = $2)`, upstreamID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking message: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (upstream_id, user_id, customer_id, direction, sender, recipient, content, image_url, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		nullString(msg.UpstreamID), msg.UserID, nullInt64(msg.CustomerID), string(msg.Direction),
		msg.From, msg.To, msg.Content, msg.ImageURL, msg.Read,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) MarkMessageRead(ctx context.Context, id int64) error {
	return s.execOne(ctx, `UPDATE messages SET is_read = TRUE WHERE id = $1`, id)
}

func (s *PostgresStorage) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
