package models

// Address is a postal address snapshot. Line2 and State are optional.
type Address struct {
	FirstName  string `gorm:"type:varchar(100)" json:"firstName" validate:"required,max=100"`
	LastName   string `gorm:"type:varchar(100)" json:"lastName" validate:"required,max=100"`
	Line1      string `gorm:"type:varchar(200)" json:"line1" validate:"required,max=200"`
	Line2      string `gorm:"type:varchar(200)" json:"line2" validate:"max=200"`
	City       string `gorm:"type:varchar(100)" json:"city" validate:"required,max=100"`
	State      string `gorm:"type:varchar(100)" json:"state" validate:"max=100"`
	PostalCode string `gorm:"type:varchar(20)" json:"postalCode" validate:"required,max=20"`
	Country    string `gorm:"type:varchar(2)" json:"country" validate:"required,len=2"`
	Phone      string `gorm:"type:varchar(32)" json:"phone" validate:"required,max=32"`
}

// SavedAddress is the single default shipping address of a user.
type SavedAddress struct {
	Base
	UserID  string  `gorm:"type:varchar(36);uniqueIndex;not null" json:"userId"`
	Address Address `gorm:"embedded" json:"address"`
}

func (SavedAddress) TableName() string {
	return "saved_addresses"
}
