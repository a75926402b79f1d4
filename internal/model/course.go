package model

import "time"

// Difficulty はコースの難易度。
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyHard         Difficulty = "Hard"
)

// Valid は定義済みの難易度かどうかを返す。
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyHard:
		return true
	}
	return false
}

// Course は研修コースを表すドメインモデル。
type Course struct {
	ID          string
	Title       string
	Description string
	Hours       float64
	Difficulty  Difficulty
	Mandatory   bool
	Images      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CourseInput はコース作成の入力値。
type CourseInput struct {
	Title       string
	Description string
	Hours       float64
	Difficulty  Difficulty
	Mandatory   bool
	Images      string
}

// CourseUpdate はコース更新の入力値。nilのフィールドは変更しない。
type CourseUpdate struct {
	Title       *string
	Description *string
	Hours       *float64
	Difficulty  *Difficulty
	Mandatory   *bool
	Images      *string
}
