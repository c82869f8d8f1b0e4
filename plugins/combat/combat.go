// Package combat resolves attacks. Damage flows through the combatDamage
// filter so other modules (gear, buffs, gangs) can adjust it.
package combat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/GoCodeAlone/modhooks"
	"github.com/go-chi/chi/v5"
)

// ID is the module identifier.
const ID = "combat"

// HookCombatDamage is a filter over Attack.
const HookCombatDamage = "combatDamage"

// Attack is the payload of combatDamage.
type Attack struct {
	Attacker string `json:"attacker"`
	Defender string `json:"defender"`
	Damage   int    `json:"damage"`
}

// AttackResult is returned by GET /attack.
type AttackResult struct {
	Attack Attack           `json:"attack"`
	Reward string           `json:"reward"`
	Alerts []modhooks.Alert `json:"alerts"`
}

// Plugin is the combat module.
type Plugin struct {
	*modhooks.BasePlugin

	baseDamage int
	multiplier float64
	reward     int64
}

// New returns an unconfigured combat plugin.
func New() modhooks.Plugin {
	return &Plugin{BasePlugin: modhooks.NewBasePlugin(ID)}
}

// Initialize reads base_damage, damage_multiplier and reward.
func (p *Plugin) Initialize(config map[string]any) error {
	if err := p.BasePlugin.Initialize(config); err != nil {
		return err
	}
	p.baseDamage = p.ConfigInt("base_damage", 10)
	p.multiplier = p.ConfigFloat("damage_multiplier", 1)
	p.reward = int64(p.ConfigInt("reward", 100))
	if p.multiplier < 0 {
		return fmt.Errorf("combat: damage_multiplier must not be negative, got %v", p.multiplier)
	}
	return nil
}

// RegisterHooks implements modhooks.Plugin.
func (p *Plugin) RegisterHooks(hooks *modhooks.HookRegistry) error {
	p.Bind(hooks)
	return modhooks.RegisterFilter(hooks, p.BasePlugin, HookCombatDamage, 10, p.scaleDamage)
}

// Describe implements modhooks.Describer.
func (p *Plugin) Describe() string {
	return "Resolves attacks between players"
}

func (p *Plugin) scaleDamage(_ context.Context, a Attack) (Attack, error) {
	a.Damage = int(math.Round(float64(a.Damage) * p.multiplier))
	return a, nil
}

// Attack computes the damage attacker deals to defender.
func (p *Plugin) Attack(ctx context.Context, attacker, defender string) (Attack, error) {
	a := Attack{Attacker: attacker, Defender: defender, Damage: p.baseDamage}
	hooks := p.Hooks()
	if hooks == nil {
		return a, nil
	}
	return modhooks.ApplyFilter(ctx, hooks, HookCombatDamage, a)
}

// Routes implements modhooks.RouteProvider.
func (p *Plugin) Routes(r chi.Router) {
	r.Get("/attack", p.handleAttack)
}

// forRequest returns a request-scoped instance sharing configuration and
// hooks but with its own alerts.
func (p *Plugin) forRequest() (*Plugin, error) {
	rp := &Plugin{BasePlugin: modhooks.NewBasePlugin(ID)}
	if err := rp.Initialize(p.Config()); err != nil {
		return nil, err
	}
	rp.Bind(p.Hooks())
	return rp, nil
}

func (p *Plugin) handleAttack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rp, err := p.forRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	attacker := r.URL.Query().Get("attacker")
	if attacker == "" {
		attacker = "player"
	}
	defender := r.URL.Query().Get("target")
	if defender == "" {
		defender = "training-dummy"
	}

	attack, err := rp.Attack(ctx, attacker, defender)
	if err != nil {
		rp.Error("The attack failed")
		writeJSON(w, http.StatusInternalServerError, AttackResult{Alerts: rp.TakeAlerts()})
		return
	}
	reward, err := rp.FormatCurrency(ctx, rp.reward)
	if err != nil {
		reward = modhooks.DefaultCurrencyFormat(rp.reward)
	}
	rp.Success(fmt.Sprintf("You hit %s for %d damage and earned %s", defender, attack.Damage, reward))
	rp.TrackAction(ctx, "attack", map[string]any{
		"defender": defender,
		"damage":   attack.Damage,
	})

	writeJSON(w, http.StatusOK, AttackResult{
		Attack: attack,
		Reward: reward,
		Alerts: rp.TakeAlerts(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
