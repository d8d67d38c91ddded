// Package domain holds the records handled by the import-user job.
package domain

import "fmt"

// Person is one row of the people table and of the CSV input.
type Person struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement" parquet:"name=id, type=INT64"`
	FirstName string `gorm:"column:first_name" parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `gorm:"column:last_name" parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName is the table the upsert writer targets.
func (Person) TableName() string { return "people" }

func (p Person) String() string {
	return fmt.Sprintf("firstName: %s, lastName: %s", p.FirstName, p.LastName)
}
