package credential

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// Key is key material represented as a sequence of strings
type Key []string

// Value implements driver.Valuer; keys are persisted as postgres text arrays
func (k Key) Value() (driver.Value, error) {
	return pq.StringArray(k).Value()
}

// Scan implements sql.Scanner
func (k *Key) Scan(src interface{}) error {
	var arr pq.StringArray
	err := arr.Scan(src)
	if err != nil {
		return err
	}
	*k = Key(arr)
	return nil
}

// Primary returns the first element of the key material, or the empty string
func (k Key) Primary() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}
