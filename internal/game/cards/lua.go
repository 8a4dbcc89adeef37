package cards

import (
	"fmt"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/sagebattle/sage-server-go/internal/game/ability"
)

const luaEntryPoint = "ability"

// LuaAbility runs an ability written in Lua. The script must define a global function
// `ability(ctx)` that returns a list of outcome tables, for example:
//
//	function ability(ctx)
//	  return { { kind = "deal_damage", side = "enemy", positions = ctx.targets, amount = 2 } }
//	end
//
// A fresh interpreter state is used per activation, so a LuaAbility is safe to share
// between games.
type LuaAbility struct {
	name   string
	source string
}

// NewLuaAbility compiles the script once to reject syntax errors and a missing entry point.
func NewLuaAbility(name, source string) (*LuaAbility, error) {
	a := &LuaAbility{name: strings.TrimSpace(name), source: source}
	l, err := a.load()
	if err != nil {
		return nil, err
	}
	l.Global(luaEntryPoint)
	defer l.Pop(1)
	if !l.IsFunction(-1) {
		return nil, fmt.Errorf("script %s: global function %q not defined", a.name, luaEntryPoint)
	}
	return a, nil
}

// Source returns the script text.
func (a *LuaAbility) Source() string { return a.source }

func (a *LuaAbility) load() (*lua.State, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)
	if err := lua.LoadString(l, a.source); err != nil {
		return nil, fmt.Errorf("script %s: load lua: %w", a.name, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("script %s: run lua: %w", a.name, err)
	}
	return l, nil
}

// Activate runs the script and converts its result into outcomes.
func (a *LuaAbility) Activate(ctx ability.Context) ([]ability.Outcome, error) {
	l, err := a.load()
	if err != nil {
		return nil, err
	}
	l.Global(luaEntryPoint)
	pushContext(l, ctx)
	if err := l.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("script %s: call ability: %w", a.name, err)
	}
	defer l.Pop(1)

	if l.IsNil(-1) {
		return nil, nil
	}
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("script %s: ability must return a table, got %s", a.name, lua.TypeNameOf(l, -1))
	}

	n := l.RawLength(-1)
	outcomes := make([]ability.Outcome, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(-1, i)
		outcome, err := readOutcome(l, ctx.Actor)
		l.Pop(1)
		if err != nil {
			return nil, fmt.Errorf("script %s: outcome %d: %w", a.name, i, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func pushContext(l *lua.State, ctx ability.Context) {
	l.NewTable()
	l.PushString(ctx.Actor)
	l.SetField(-2, "actor")
	l.PushInteger(ctx.Slot)
	l.SetField(-2, "slot")
	l.PushString(ctx.Card)
	l.SetField(-2, "card")
	l.NewTable()
	for i, t := range ctx.Targets {
		l.PushInteger(t)
		l.RawSetInt(-2, i+1)
	}
	l.SetField(-2, "targets")
}

func readOutcome(l *lua.State, actor string) (ability.Outcome, error) {
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("expected table, got %s", lua.TypeNameOf(l, -1))
	}
	kind := readString(l, "kind")
	if kind == "" {
		return nil, fmt.Errorf("outcome kind is required")
	}
	fields := ability.Fields{
		Amount:       readInt(l, "amount"),
		Side:         readString(l, "side"),
		Positions:    readInts(l, "positions"),
		HandIndex:    readInts(l, "hand"),
		DiscardIndex: readInts(l, "discard"),
	}
	return ability.Build(ability.Kind(kind), actor, fields)
}

func readString(l *lua.State, field string) string {
	l.Field(-1, field)
	defer l.Pop(1)
	s, _ := l.ToString(-1)
	return s
}

func readInt(l *lua.State, field string) *int {
	l.Field(-1, field)
	defer l.Pop(1)
	if !l.IsNumber(-1) {
		return nil
	}
	v, _ := l.ToInteger(-1)
	return &v
}

func readInts(l *lua.State, field string) []int {
	l.Field(-1, field)
	defer l.Pop(1)
	if !l.IsTable(-1) {
		return nil
	}
	n := l.RawLength(-1)
	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(-1, i)
		v, _ := l.ToInteger(-1)
		l.Pop(1)
		out = append(out, v)
	}
	return out
}
