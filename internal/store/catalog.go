package store

import (
	"context"
	"database/sql"
	"fmt"

	"biashara-service/internal/models"
)

// GetBusiness retrieves a business by ID
func (s *Store) GetBusiness(ctx context.Context, businessID int64) (*models.Business, error) {
	var business models.Business
	err := s.db.GetContext(ctx, &business,
		"SELECT * FROM businesses WHERE id = $1", businessID)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "business", ID: businessID}
	}
	if err != nil {
		return nil, err
	}
	return &business, nil
}

// UpdateBusiness updates a business profile
func (s *Store) UpdateBusiness(ctx context.Context, business *models.Business) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE businesses
		SET name = $1, business_type = $2, description = $3, address = $4,
		    phone = $5, email = $6, currency = $7, tax_pin = $8, updated_at = NOW()
		WHERE id = $9`,
		business.Name, business.BusinessType, business.Description, business.Address,
		business.Phone, business.Email, business.Currency, business.TaxPIN, business.ID)
	return err
}

// GetProduct retrieves a product scoped to a business
func (s *Store) GetProduct(ctx context.Context, businessID, productID int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 AND business_id = $2", productID, businessID)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products for a business with optional category and
// name-search filters
func (s *Store) ListProducts(ctx context.Context, businessID int64, category, search string, limit, offset int) ([]models.Product, error) {
	query := "SELECT * FROM products WHERE business_id = $1"
	args := []interface{}{businessID}

	if category != "" {
		args = append(args, category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// CreateProduct creates a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	return s.db.GetContext(ctx, product, `
		INSERT INTO products (name, category, price, stock, low_stock_threshold, business_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		product.Name, product.Category, product.Price,
		product.Stock, product.LowStockThreshold, product.BusinessID)
}

// UpdateProduct updates an existing product, scoped to its business
func (s *Store) UpdateProduct(ctx context.Context, product *models.Product) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, category = $2, price = $3, stock = $4, low_stock_threshold = $5, updated_at = NOW()
		WHERE id = $6 AND business_id = $7`,
		product.Name, product.Category, product.Price, product.Stock,
		product.LowStockThreshold, product.ID, product.BusinessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "product", ID: product.ID}
	}
	return nil
}

// DeleteProduct removes a product, scoped to its business
func (s *Store) DeleteProduct(ctx context.Context, businessID, productID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM products WHERE id = $1 AND business_id = $2", productID, businessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "product", ID: productID}
	}
	return nil
}

// GetCustomer retrieves a customer scoped to a business
func (s *Store) GetCustomer(ctx context.Context, businessID, customerID int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT * FROM customers WHERE id = $1 AND business_id = $2", customerID, businessID)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "customer", ID: customerID}
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// ListCustomers retrieves customers for a business with an optional
// name/phone/email search
func (s *Store) ListCustomers(ctx context.Context, businessID int64, search string, limit, offset int) ([]models.Customer, error) {
	query := "SELECT * FROM customers WHERE business_id = $1"
	args := []interface{}{businessID}

	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR phone ILIKE $%d OR email ILIKE $%d)",
			len(args), len(args), len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var customers []models.Customer
	err := s.db.SelectContext(ctx, &customers, query, args...)
	return customers, err
}

// GetCustomerByEmail retrieves a customer by email within a business, or
// nil when none exists
func (s *Store) GetCustomerByEmail(ctx context.Context, businessID int64, email string) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT * FROM customers WHERE business_id = $1 AND email = $2", businessID, email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCustomer creates a new customer
func (s *Store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	return s.db.GetContext(ctx, customer, `
		INSERT INTO customers (name, phone, email, status, business_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		customer.Name, customer.Phone, customer.Email, customer.Status, customer.BusinessID)
}

// UpdateCustomer updates customer contact info and status, scoped to its
// business. Purchase totals are off limits here; they move only through
// sale completion.
func (s *Store) UpdateCustomer(ctx context.Context, customer *models.Customer) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $1, phone = $2, email = $3, status = $4, updated_at = NOW()
		WHERE id = $5 AND business_id = $6`,
		customer.Name, customer.Phone, customer.Email, customer.Status,
		customer.ID, customer.BusinessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "customer", ID: customer.ID}
	}
	return nil
}

// DeleteCustomer removes a customer, scoped to its business
func (s *Store) DeleteCustomer(ctx context.Context, businessID, customerID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM customers WHERE id = $1 AND business_id = $2", customerID, businessID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return &models.NotFoundError{Resource: "customer", ID: customerID}
	}
	return nil
}
