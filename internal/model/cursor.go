package model

// ReplayCursor is the position of the last event whose effects are in the
// store. It is written in the same batch as those effects.
type ReplayCursor struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

func (c *ReplayCursor) EntityKind() Kind { return KindReplayCursor }
func (c *ReplayCursor) EntityID() string  { return c.ID }
