package id

import (
	"database/sql/driver"
	"fmt"
)

// Value implements driver.Valuer. Nil stores as NULL so optional columns
// stay nullable.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL is the canonical empty value
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner for text and bytea columns.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
