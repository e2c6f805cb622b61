package models

// Problem is a coding problem served to battle rounds, selected by target
// rating. The problem bank itself is maintained outside this engine.
type Problem struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Rating  int    `json:"rating" db:"rating"`
	Summary string `json:"summary" db:"summary"`
}
