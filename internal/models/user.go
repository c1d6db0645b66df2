package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Username     string   `json:"username" gorm:"type:varchar(30);uniqueIndex;not null"`
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'user'"`

	Listings []Listing `json:"-" gorm:"foreignKey:OwnerID"`
	Reviews  []Review  `json:"-" gorm:"foreignKey:AuthorID"`
}
