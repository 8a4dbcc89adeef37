// Package cards holds card instances, the read-only card catalog and decklists.
package cards

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sagebattle/sage-server-go/internal/game/ability"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
)

//go:embed scripts/*.lua
var builtinScripts embed.FS

// Decklist is the starting card set that comes with a sage.
type Decklist struct {
	Sage     string
	Starter  string
	Warriors []string
	Deck     []string
}

// HasWarrior reports whether name is one of the decklist's warriors.
func (d Decklist) HasWarrior(name string) bool {
	for _, w := range d.Warriors {
		if w == name {
			return true
		}
	}
	return false
}

// Catalog is the shared, read-only set of card templates. Every card that reaches a
// battlefield, hand or pile is a clone; templates are never mutated by play.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]*Card
	decklists map[string]Decklist
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		templates: make(map[string]*Card),
		decklists: make(map[string]Decklist),
	}
}

// Register adds or replaces a card template.
func (c *Catalog) Register(card *Card) error {
	if card == nil || strings.TrimSpace(card.Name) == "" {
		return fmt.Errorf("card name is required")
	}
	if card.IsElemental() && card.Health <= 0 {
		return fmt.Errorf("card %s: elemental cards need positive health", card.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[card.Name] = card.Clone()
	return nil
}

// RegisterDecklist adds a decklist keyed by its sage. Every referenced card must exist.
func (c *Catalog) RegisterDecklist(d Decklist) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := append([]string{d.Sage, d.Starter}, d.Warriors...)
	names = append(names, d.Deck...)
	for _, name := range names {
		if _, ok := c.templates[name]; !ok {
			return fmt.Errorf("decklist %s: unknown card %q", d.Sage, name)
		}
	}
	if c.templates[d.Sage].Kind != KindSage {
		return fmt.Errorf("decklist %s: card is not a sage", d.Sage)
	}
	c.decklists[d.Sage] = d
	return nil
}

// Clone returns a fresh mutable instance of the named card.
func (c *Catalog) Clone(name string) (*Card, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.templates[name]
	if !ok {
		return nil, gameerr.New(gameerr.ErrCardNotFound, "card %q is not in the catalog", name)
	}
	return tpl.Clone(), nil
}

// Price returns the catalog price of a card.
func (c *Catalog) Price(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.templates[name]
	if !ok {
		return 0, gameerr.New(gameerr.ErrCardNotFound, "card %q is not in the catalog", name)
	}
	return tpl.Price, nil
}

// Decklist returns the decklist that comes with the named sage.
func (c *Catalog) Decklist(sage string) (Decklist, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decklists[sage]
	if !ok {
		return Decklist{}, gameerr.New(gameerr.ErrCardNotFound, "no decklist for sage %q", sage)
	}
	return d, nil
}

// Sages lists the selectable sages in name order.
func (c *Catalog) Sages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.decklists))
	for name := range c.decklists {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Templates returns copies of every template in name order.
func (c *Catalog) Templates() []*Card {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Card, 0, len(c.templates))
	for _, tpl := range c.templates {
		out = append(out, tpl.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AttachScript compiles a Lua ability and attaches it to an existing template.
func (c *Catalog) AttachScript(cardName, source string) error {
	a, err := NewLuaAbility(cardName, source)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tpl, ok := c.templates[cardName]
	if !ok {
		return fmt.Errorf("script for unknown card %q", cardName)
	}
	tpl.Ability = a
	return nil
}

// LoadScripts attaches every *.lua file under dir. The card a script belongs to is
// named on its first line: "-- Card Name: description".
func (c *Catalog) LoadScripts(fsys fs.FS, dir string) (int, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.lua"))
	if err != nil {
		return 0, fmt.Errorf("list scripts: %w", err)
	}
	for _, file := range matches {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return 0, fmt.Errorf("read script %s: %w", file, err)
		}
		name, err := scriptCardName(string(data))
		if err != nil {
			return 0, fmt.Errorf("script %s: %w", file, err)
		}
		if err := c.AttachScript(name, string(data)); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

func scriptCardName(source string) (string, error) {
	line, _, _ := strings.Cut(source, "\n")
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "--") {
		return "", fmt.Errorf("first line must name the card")
	}
	name, _, ok := strings.Cut(strings.TrimPrefix(line, "--"), ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", fmt.Errorf("first line must be \"-- Card Name: ...\"")
	}
	return name, nil
}

// csvColumns is the header LoadCSV expects, in order.
var csvColumns = []string{"name", "price", "kind", "element", "attack", "health", "rows", "day_break"}

// LoadCSV registers card templates from a CSV export. Abilities are attached separately.
func (c *Catalog) LoadCSV(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	for i, col := range csvColumns {
		if i >= len(records[0]) || strings.TrimSpace(records[0][i]) != col {
			return 0, fmt.Errorf("csv header must be %s", strings.Join(csvColumns, ","))
		}
	}
	count := 0
	for i, record := range records[1:] {
		card, err := parseCSVCard(record)
		if err != nil {
			return count, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		if err := c.Register(card); err != nil {
			return count, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		count++
	}
	return count, nil
}

func parseCSVCard(record []string) (*Card, error) {
	if len(record) < len(csvColumns) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(csvColumns), len(record))
	}
	price, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	attack, err := atoiOrZero(record[4])
	if err != nil {
		return nil, fmt.Errorf("attack: %w", err)
	}
	health, err := atoiOrZero(record[5])
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	var rows []Row
	for _, r := range strings.Split(record[6], "|") {
		if r = strings.TrimSpace(r); r != "" {
			rows = append(rows, Row(r))
		}
	}
	dayBreak, _ := strconv.ParseBool(strings.TrimSpace(record[7]))
	return &Card{
		Name:                 strings.TrimSpace(record[0]),
		Price:                price,
		Kind:                 Kind(strings.ToUpper(strings.TrimSpace(record[2]))),
		Element:              Element(strings.TrimSpace(record[3])),
		Attack:               attack,
		Health:               health,
		RowRequirement:       rows,
		TriggersAtRoundStart: dayBreak,
	}, nil
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// DefaultCatalog returns the built-in card set with its scripted abilities attached.
func DefaultCatalog() (*Catalog, error) {
	c := NewCatalog()
	for _, card := range builtinCards() {
		if err := c.Register(card); err != nil {
			return nil, err
		}
	}
	if _, err := c.LoadScripts(builtinScripts, "scripts"); err != nil {
		return nil, err
	}
	for _, d := range builtinDecklists() {
		if err := c.RegisterDecklist(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func builtinCards() []*Card {
	sage := func(name string, el Element, skill Ability) *Card {
		return &Card{Name: name, Kind: KindSage, Element: el, Attack: 2, Health: 12, Ability: skill}
	}
	unit := func(name string, kind Kind, el Element, price, atk, hp int) *Card {
		return &Card{Name: name, Price: price, Kind: kind, Element: el, Attack: atk, Health: hp}
	}
	dayBreak := func(card *Card, rows ...Row) *Card {
		card.TriggersAtRoundStart = true
		card.RowRequirement = rows
		return card
	}

	return []*Card{
		sage("Twig Sage", ElementTwig, AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.Draw{Amount: ability.Int(1)}}, nil
		})),
		sage("Pebble Sage", ElementPebble, AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.AddShield{Target: ability.Self(ctx.Targets...), Amount: ability.Int(1)}}, nil
		})),
		sage("Leaf Sage", ElementLeaf, AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.AddBoost{Target: ability.Self(ctx.Targets...), Amount: ability.Int(1)}}, nil
		})),
		sage("Droplet Sage", ElementDroplet, AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.ReduceDamage{Target: ability.Self(ctx.Targets...), Amount: ability.Int(2)}}, nil
		})),

		unit("Twig Sprout", KindElemental, ElementTwig, 1, 1, 2),
		unit("Pebble Pup", KindElemental, ElementPebble, 1, 1, 2),
		unit("Leaf Bud", KindElemental, ElementLeaf, 1, 1, 2),
		unit("Droplet Drip", KindElemental, ElementDroplet, 1, 1, 2),

		unit("Bramble Knight", KindWarrior, ElementTwig, 3, 3, 4),
		unit("Thorn Archer", KindWarrior, ElementTwig, 3, 4, 3),
		unit("Root Guard", KindWarrior, ElementTwig, 3, 2, 5),
		unit("Cobble Brute", KindWarrior, ElementPebble, 3, 4, 3),
		unit("Slate Sentinel", KindWarrior, ElementPebble, 3, 2, 5),
		unit("Gravel Scout", KindWarrior, ElementPebble, 3, 3, 4),
		unit("Fern Dancer", KindWarrior, ElementLeaf, 3, 3, 4),
		unit("Canopy Ranger", KindWarrior, ElementLeaf, 3, 4, 3),
		unit("Moss Warden", KindWarrior, ElementLeaf, 3, 2, 5),
		unit("Tide Caller", KindWarrior, ElementDroplet, 3, 3, 4),
		unit("Mist Stalker", KindWarrior, ElementDroplet, 3, 4, 3),
		unit("Brook Guardian", KindWarrior, ElementDroplet, 3, 2, 5),

		dayBreak(unit("Twig Lumberjack", KindElemental, ElementTwig, 2, 1, 3), RowBack, RowMiddle),
		dayBreak(unit("Quarry Mason", KindElemental, ElementPebble, 2, 1, 4)),
		dayBreak(unit("Brook Healer", KindElemental, ElementDroplet, 2, 1, 3)),
		func() *Card {
			c := dayBreak(unit("Meadow Forager", KindElemental, ElementLeaf, 2, 1, 3))
			c.Ability = AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
				return []ability.Outcome{ability.Draw{Amount: ability.Int(1)}}, nil
			})
			return c
		}(),

		{Name: "Gold Pouch", Price: 2, Kind: KindItem, Ability: AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.CollectGold{Amount: ability.Int(2)}}, nil
		})},
		{Name: "Healing Salve", Price: 2, Kind: KindItem, Ability: AbilityFunc(func(ctx ability.Context) ([]ability.Outcome, error) {
			return []ability.Outcome{ability.RemoveAllDamage{Target: ability.Self(ctx.Targets...)}}, nil
		})},
		{Name: "Pollen Burst", Price: 3, Kind: KindItem},
	}
}

func builtinDecklists() []Decklist {
	deck := func(starter, dayBreak string) []string {
		return []string{starter, starter, dayBreak, "Gold Pouch", "Healing Salve", "Pollen Burst"}
	}
	return []Decklist{
		{Sage: "Twig Sage", Starter: "Twig Sprout", Warriors: []string{"Bramble Knight", "Thorn Archer", "Root Guard"}, Deck: deck("Twig Sprout", "Twig Lumberjack")},
		{Sage: "Pebble Sage", Starter: "Pebble Pup", Warriors: []string{"Cobble Brute", "Slate Sentinel", "Gravel Scout"}, Deck: deck("Pebble Pup", "Quarry Mason")},
		{Sage: "Leaf Sage", Starter: "Leaf Bud", Warriors: []string{"Fern Dancer", "Canopy Ranger", "Moss Warden"}, Deck: deck("Leaf Bud", "Meadow Forager")},
		{Sage: "Droplet Sage", Starter: "Droplet Drip", Warriors: []string{"Tide Caller", "Mist Stalker", "Brook Guardian"}, Deck: deck("Droplet Drip", "Brook Healer")},
	}
}
