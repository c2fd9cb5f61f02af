package domain

import (
	"time"

	"github.com/uptrace/bun"
)

type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availabilities,alias:s"`

	ID       int64     `bun:"id,pk,autoincrement"`
	Username string    `bun:"username,notnull"`
	Time     time.Time `bun:"time,type:date,notnull"`
}

type Vaccine struct {
	bun.BaseModel `bun:"table:vaccines,alias:v"`

	Name  string `bun:"name,pk"`
	Doses int    `bun:"doses,notnull"`
}
