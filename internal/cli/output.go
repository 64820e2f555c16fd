package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case []User:
		o.printUsers(v)
	case AuthResult:
		o.printAuthResult(v)
	case World:
		o.printWorld(v)
	case []Dragon:
		o.printDragons(v)
	case []OnlineUser:
		o.printOnline(v)
	case []Collectible:
		o.printCollectibles(v)
	case []Session:
		o.printSessions(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Position is a point in world coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// User response type (matches API)
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Nickname     string    `json:"nickname"`
	IsAdmin      bool      `json:"isAdmin"`
	LastPosition *Position `json:"lastPosition,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AuthResult combines user and token
type AuthResult struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Bounds response type
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// World response type
type World struct {
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
	Bounds Bounds   `json:"bounds"`
	Spawn  Position `json:"spawn"`
}

// Dragon response type
type Dragon struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// OnlineUser response type
type OnlineUser struct {
	UserID   string   `json:"userId"`
	Nickname string   `json:"nickname"`
	Position Position `json:"position"`
	DragonID string   `json:"dragonId,omitempty"`
}

// Collectible response type
type Collectible struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Position    Position `json:"position"`
	Collected   bool     `json:"collected"`
	CollectedBy string   `json:"collectedBy,omitempty"`
}

// Session response type
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (o *Output) printUser(u User) {
	adminStr := "no"
	if u.IsAdmin {
		adminStr = "yes"
	}
	fmt.Printf("User: %s (%s)\n", u.Username, u.ID)
	fmt.Printf("Nickname: %s\n", u.Nickname)
	fmt.Printf("Admin: %s\n", adminStr)
	if u.LastPosition != nil {
		fmt.Printf("Last seen at: (%.0f, %.0f)\n", u.LastPosition.X, u.LastPosition.Y)
	}
}

func (o *Output) printUsers(users []User) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tNICKNAME\tADMIN")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", u.ID, u.Username, u.Nickname, u.IsAdmin)
	}
	_ = w.Flush()
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printUser(a.User)
	fmt.Printf("Session expires: %s\n", a.ExpiresAt.Local().Format(time.DateTime))
}

func (o *Output) printWorld(w World) {
	fmt.Printf("World: %.0f x %.0f\n", w.Width, w.Height)
	fmt.Printf("Playable: (%.0f, %.0f) to (%.0f, %.0f)\n", w.Bounds.MinX, w.Bounds.MinY, w.Bounds.MaxX, w.Bounds.MaxY)
	fmt.Printf("Spawn: (%.0f, %.0f)\n", w.Spawn.X, w.Spawn.Y)
}

func (o *Output) printDragons(dragons []Dragon) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tIMAGE")
	for _, d := range dragons {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Image)
	}
	_ = w.Flush()
}

func (o *Output) printOnline(users []OnlineUser) {
	if len(users) == 0 {
		fmt.Println("Nobody is online")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NICKNAME\tPOSITION\tDRAGON")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t(%.0f, %.0f)\t%s\n", u.Nickname, u.Position.X, u.Position.Y, u.DragonID)
	}
	_ = w.Flush()
}

func (o *Output) printCollectibles(items []Collectible) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPOSITION\tCOLLECTED BY")
	for _, c := range items {
		by := "-"
		if c.Collected {
			by = c.CollectedBy
		}
		fmt.Fprintf(w, "%s\t%s\t(%.0f, %.0f)\t%s\n", c.ID, c.Kind, c.Position.X, c.Position.Y, by)
	}
	_ = w.Flush()
}

func (o *Output) printSessions(sessions []Session) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tUSERNAME\tNICKNAME\tEXPIRES")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Username, s.Nickname, s.ExpiresAt.Local().Format(time.DateTime))
	}
	_ = w.Flush()
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Connections: %d\n", h.Connections)
}
