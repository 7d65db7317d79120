package stages

import (
	"slices"
	"time"
)

type Stage struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Objective string        `json:"objective"`
	TimeLimit time.Duration `json:"timeLimit"`
	AvatarID  string        `json:"avatarId"`
}

func (s Stage) LimitSeconds() int {
	return int(s.TimeLimit / time.Second)
}

// Catalog is an ordered, read-only list of stages.
type Catalog []Stage

var Default = Catalog{
	{
		ID:        "mom",
		Name:      "Mom",
		Objective: "You're not an idiot. Your mom believes in you. Just tell her what you're building and why it matters.",
		TimeLimit: 45 * time.Second,
		AvatarID:  "6dbc1e47-7768-403e-878a-94d7fcc3677b",
	},
	{
		ID:        "local-angel",
		Name:      "Local Angel",
		Objective: "A warm, supportive angel investor. They want to help founders succeed. Show them your passion and potential.",
		TimeLimit: 120 * time.Second,
		AvatarID:  "19d18eb0-5346-4d50-a77f-26b3723ed79d",
	},
	{
		ID:        "vc-single",
		Name:      "VC Single",
		Objective: "A professional VC evaluating your deal. Be concise, know your numbers, and make your case compelling.",
		TimeLimit: 90 * time.Second,
		AvatarID:  "6cc28442-cccd-42a8-b6e4-24b7210a09c5",
	},
	{
		ID:        "yc-traction",
		Name:      "YC Partner",
		Objective: "YC partners care about traction above all. Show them your growth, metrics, and momentum.",
		TimeLimit: 90 * time.Second,
		AvatarID:  "81b70170-2e80-4e4b-a6fb-e04ac110dc4b",
	},
	{
		ID:        "shark-tank",
		Name:      "Shark Tank",
		Objective: "The sharks are tough and focused on marketing potential. Convince them your product can scale.",
		TimeLimit: 120 * time.Second,
		AvatarID:  "e36f16d8-7ad1-423b-b9c9-70d49f5eaac6",
	},
}

func (c Catalog) ByID(id string) (Stage, bool) {
	if i := c.Index(id); i >= 0 {
		return c[i], true
	}
	return Stage{}, false
}

// Index returns the position of the stage, or -1 if it is not in the catalog.
func (c Catalog) Index(id string) int {
	return slices.IndexFunc(c, func(s Stage) bool { return s.ID == id })
}

func (c Catalog) Next(id string) (Stage, bool) {
	i := c.Index(id)
	if i < 0 || i >= len(c)-1 {
		return Stage{}, false
	}
	return c[i+1], true
}

func (c Catalog) IsLast(id string) bool {
	return len(c) > 0 && c.Index(id) == len(c)-1
}

func (c Catalog) First() (Stage, bool) {
	if len(c) == 0 {
		return Stage{}, false
	}
	return c[0], true
}
