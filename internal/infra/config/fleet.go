package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// minTokenLen: un token de Discord real siempre supera esto; lo que no
// llegue es un placeholder del archivo de ejemplo.
const minTokenLen = 50

// Fleet es el archivo de configuración de la flota (jsonc, admite
// comentarios). Los tokens vacíos o placeholder se saltan: la flota
// arranca con los bots que sí tengan credenciales.
type Fleet struct {
	Tokens        []string `json:"tokens"`
	MusicBot      int      `json:"music_bot"`       // número de bot con música, 0 = ninguno
	IdleChannelID string   `json:"idle_channel_id"` // canal de espera, opcional
	AdminRoleIDs  []string `json:"admin_role_ids"`

	TierRoles struct {
		DonaturIDs    []string `json:"donatur_role_ids"`
		DonaturNames  []string `json:"donatur_role_names"`
		LoyalistIDs   []string `json:"loyalist_role_ids"`
		LoyalistNames []string `json:"loyalist_role_names"`
	} `json:"tier_roles"`
}

// LoadFleet lee y valida el archivo de flota. maxBots acota cuántos
// tokens se toman aunque el archivo traiga más.
func LoadFleet(path string, maxBots int) (Fleet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fleet{}, fmt.Errorf("leyendo %s: %w", path, err)
	}
	var f Fleet
	if err := json.Unmarshal(jsonc.ToJSON(raw), &f); err != nil {
		return Fleet{}, fmt.Errorf("parseando %s: %w", path, err)
	}

	tokens := make([]string, 0, len(f.Tokens))
	for i, tok := range f.Tokens {
		tok = strings.TrimSpace(tok)
		if len(tok) < minTokenLen || strings.Contains(tok, "YOUR_") {
			log.Printf("fleet: token #%d vacío o placeholder, salto ese bot", i+1)
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return Fleet{}, fmt.Errorf("%s: ningún token válido", path)
	}
	if len(tokens) > maxBots {
		log.Printf("fleet: %d tokens, me quedo con los primeros %d", len(tokens), maxBots)
		tokens = tokens[:maxBots]
	}
	f.Tokens = tokens

	if f.MusicBot < 0 || f.MusicBot > len(f.Tokens) {
		log.Printf("fleet: music_bot=%d fuera de rango, lo ignoro", f.MusicBot)
		f.MusicBot = 0
	}
	return f, nil
}
