package domain

import "time"

// CampaignStatus is the campaign lifecycle state.
type CampaignStatus string

const (
	StatusNotStarted CampaignStatus = "NOT_STARTED"
	StatusActive     CampaignStatus = "ACTIVE"
	StatusProcessing CampaignStatus = "PROCESSING"
	StatusCompleted  CampaignStatus = "COMPLETED"
	StatusCancel     CampaignStatus = "CANCEL"
)

// ChildStatus is the state of a keyword or link inside a campaign.
type ChildStatus string

const (
	ChildActive   ChildStatus = "ACTIVE"
	ChildInactive ChildStatus = "INACTIVE"
)

// KeywordType selects the pricing rule for completed traffic.
type KeywordType string

const (
	KeywordStandard KeywordType = "standard"
	KeywordVideo    KeywordType = "video"
)

type Campaign struct {
	ID        int64          `gorm:"primaryKey"`
	UserID    int64          `gorm:"not null;index"`
	Name      string         `gorm:"type:text;not null"`
	Status    CampaignStatus `gorm:"type:text;not null;index"`
	StartDate time.Time      `gorm:"not null"`
	EndDate   time.Time      `gorm:"not null;index"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Keywords []Keyword `gorm:"foreignKey:CampaignID"`
	Links    []Link    `gorm:"foreignKey:CampaignID"`
}

func (Campaign) TableName() string { return "campaigns" }

type Keyword struct {
	ID         int64       `gorm:"primaryKey"`
	CampaignID int64       `gorm:"not null;index"`
	Word       string      `gorm:"type:text;not null"`
	Type       KeywordType `gorm:"type:text;not null;default:standard"`
	Cost       float64     `gorm:"not null;default:0"`
	TimeOnSite int         `gorm:"not null;default:0"`
	Traffic    int64       `gorm:"not null;default:0"`
	Status     ChildStatus `gorm:"type:text;not null;default:ACTIVE"`
	CreatedAt  time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Keyword) TableName() string { return "keywords" }

type Link struct {
	ID         int64       `gorm:"primaryKey"`
	CampaignID int64       `gorm:"not null;index"`
	URL        string      `gorm:"type:text;not null"`
	Cost       float64     `gorm:"not null;default:0"`
	Traffic    int64       `gorm:"not null;default:0"`
	Status     ChildStatus `gorm:"type:text;not null;default:ACTIVE"`
	CreatedAt  time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Link) TableName() string { return "links" }

// TotalCost sums what the campaign owner paid for keywords and links.
func (c *Campaign) TotalCost() float64 {
	var total float64
	for _, kw := range c.Keywords {
		total += kw.Cost
	}
	for _, ln := range c.Links {
		total += ln.Cost
	}
	return total
}
