package storage

import (
	"strings"

	"nouhin/internal"
)

// SaveDocument writes the delivery note header and all of its line items in
// a single transaction. Either everything lands or nothing does.
func (d *DB) SaveDocument(doc internal.Document) (int64, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
INSERT INTO delivery_notes (supplierId, deliveryDate, totalAmount, originalFileName, fileType)
VALUES (?, ?, ?, ?, ?)
`, doc.SupplierID, doc.DeliveryDate, doc.TotalAmount, doc.OriginalFileName, string(doc.SourceKind))
	if err != nil {
		return 0, err
	}
	noteID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO delivery_note_items (
  deliveryNoteId, lineNumber, deliveryDate, documentNumber,
  productCode, productName, quantity, unitPrice, amount, remarks
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, item := range doc.Items {
		_, err := stmt.Exec(
			noteID, item.LineNumber, item.DeliveryDate, item.DocumentNumber,
			item.ProductCode, item.ProductName, item.Quantity, item.UnitPrice, item.Amount, item.Remarks,
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return noteID, nil
}

func (d *DB) UpsertPosDepartments(departments []internal.PosDepartment) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO pos_departments (departmentId, name, parentDepartmentId, level, lastSeenAt)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(departmentId) DO UPDATE SET
  name=excluded.name,
  parentDepartmentId=excluded.parentDepartmentId,
  level=excluded.level,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, dept := range departments {
		if _, err := stmt.Exec(dept.DepartmentID, dept.Name, dept.ParentDepartmentID, dept.Level); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) UpsertPosProducts(products []internal.PosProduct) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO pos_products (productCode, productId, departmentId, lastSeenAt)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(productCode) DO UPDATE SET
  productId=excluded.productId,
  departmentId=excluded.departmentId,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, product := range products {
		if _, err := stmt.Exec(product.ProductCode, product.ProductID, product.DepartmentID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// KnownPosProductCodes reports which of the given codes already exist in
// the mirrored POS product table.
func (d *DB) KnownPosProductCodes(codes []string) (map[string]bool, error) {
	known := map[string]bool{}
	if len(codes) == 0 {
		return known, nil
	}

	placeholders := make([]string, len(codes))
	args := make([]any, len(codes))
	for i, code := range codes {
		placeholders[i] = "?"
		args[i] = code
	}

	rows, err := d.conn.Query(
		`SELECT productCode FROM pos_products WHERE productCode IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		known[code] = true
	}
	return known, rows.Err()
}

// CountNoteItems reports the stored line item count for a delivery note.
func (d *DB) CountNoteItems(noteID int64) (int, error) {
	var count int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM delivery_note_items WHERE deliveryNoteId = ?`, noteID).Scan(&count)
	return count, err
}
