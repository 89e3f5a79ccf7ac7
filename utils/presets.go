package utils

import (
	"fmt"
	"reflect"
	"strings"
)

// MissingPresetFields lists every preset field left empty, for logging at startup.
func MissingPresetFields(presets []GamePreset) []string {
	var missing []string
	for _, preset := range presets {
		missing = append(missing, missingFields(preset, "Preset '"+preset.Name+"'")...)
	}
	return missing
}

var optionalFields = map[string]bool{
	"Pioneer": true,
}

// missingFields lists every non-optional field left at its zero value.
func missingFields(data interface{}, context string) []string {
	v := reflect.ValueOf(data)
	t := v.Type()

	if t.Kind() != reflect.Struct {
		return nil
	}

	var missing []string
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		if optionalFields[field.Name] || field.Type.Kind() == reflect.Bool {
			continue
		}

		if fieldValue.Kind() == reflect.Struct {
			missing = append(missing, missingFields(fieldValue.Interface(), context+" > "+field.Name)...)
			continue
		}

		if fieldValue.IsZero() {
			missing = append(missing, context+" > "+field.Name)
		}
	}
	return missing
}

type GamePreset struct {
	Name              string `json:"name"`
	LobbyURL          string `json:"lobby_url"`
	PlatformGameID    string `json:"platform_game_id"`
	GameEnvironmentID string `json:"game_environment_id"`
	Locale            string `json:"locale"`
	GfLang            string `json:"gf_lang"`
	Pioneer           bool   `json:"pioneer"`
}

var Presets = []GamePreset{
	{
		Name:              "ogame",
		LobbyURL:          "https://lobby.ogame.gameforge.com",
		PlatformGameID:    "1dfd8e7e-6e1a-4eb1-8c64-03c3b62efd2f",
		GameEnvironmentID: "0a31d605-ffaf-43e7-aa02-d06df7116fc8",
		Locale:            "de_DE",
		GfLang:            "de",
	},
	{
		Name:              "ogame_pioneers",
		LobbyURL:          "https://lobby-pioneers.ogame.gameforge.com",
		PlatformGameID:    "b990cab3-3573-4605-965a-0693c0adde26",
		GameEnvironmentID: "1dfd8e7e-6e1a-4eb1-8c64-03c3b62efd2f",
		Locale:            "de_DE",
		GfLang:            "de",
		Pioneer:           true,
	},
}

func FindPreset(name string) (GamePreset, error) {
	if name == "" {
		return Presets[0], nil
	}

	for _, preset := range Presets {
		if strings.EqualFold(preset.Name, name) {
			return preset, nil
		}
	}
	return GamePreset{}, fmt.Errorf("preset not found: %s", name)
}

// IndexURL is the game entry point of one universe.
func IndexURL(serverNumber int, language string) string {
	return fmt.Sprintf("https://s%d-%s.ogame.gameforge.com/game/index.php?", serverNumber, language)
}
