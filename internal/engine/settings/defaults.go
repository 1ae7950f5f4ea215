package settings

// Defaults returns the built-in tuning table. Every selector reads these
// values through dotted-path lookups so host overrides can reshape the
// game without code changes.
func Defaults() map[string]any {
	return map[string]any{
		"roundTypes": map[string]any{
			"duel": map[string]any{
				"weight":              1.0,
				"minPlayers":          2,
				"maxPlayers":          0,
				"baseDurationSeconds": 45.0,
				"variants": []any{
					map[string]any{"id": "race", "difficulty": 0},
					map[string]any{"id": "balance", "difficulty": 1},
					map[string]any{"id": "mirror", "difficulty": 1},
					map[string]any{"id": "quickdraw", "difficulty": 2},
				},
			},
			"team": map[string]any{
				"weight":              1.0,
				"minPlayers":          4,
				"maxPlayers":          0,
				"baseDurationSeconds": 60.0,
				"variants": []any{
					map[string]any{"id": "relay", "difficulty": 0},
					map[string]any{"id": "tugOfWar", "difficulty": 1},
					map[string]any{"id": "chainTag", "difficulty": 2},
				},
			},
			"freeForAll": map[string]any{
				"weight":              1.0,
				"minPlayers":          3,
				"maxPlayers":          0,
				"baseDurationSeconds": 50.0,
				"variants": []any{
					map[string]any{"id": "statues", "difficulty": 0},
					map[string]any{"id": "simonClassic", "difficulty": 1},
					map[string]any{"id": "floorIsLava", "difficulty": 2},
				},
			},
			"asymmetric": map[string]any{
				"weight":              0.8,
				"minPlayers":          4,
				"maxPlayers":          0,
				"baseDurationSeconds": 60.0,
				"variants": []any{
					map[string]any{"id": "infection", "difficulty": 1},
					map[string]any{"id": "guardians", "difficulty": 1},
					map[string]any{"id": "heist", "difficulty": 2},
				},
			},
		},

		"subVariants": []any{
			map[string]any{"id": "normal", "difficulty": 0},
			map[string]any{"id": "backwards", "difficulty": 1},
			map[string]any{"id": "hop", "difficulty": 1},
			map[string]any{"id": "slowMotion", "difficulty": 1},
			map[string]any{"id": "crabWalk", "difficulty": 2},
		},

		"modifiers": map[string]any{
			"baseProbability": 0.35,
			"excluded":        []any{},
			"options": []any{
				map[string]any{"id": "oneHand", "difficulty": 1},
				map[string]any{"id": "silent", "difficulty": 1},
				map[string]any{"id": "eyesClosed", "difficulty": 2},
				map[string]any{"id": "holdingHands", "difficulty": 2},
			},
		},

		"playerCounts": map[string]any{
			"smallMax": 6,
			"largeMin": 20,
			"small": map[string]any{
				"duel":       1.5,
				"team":       0.7,
				"freeForAll": 0.7,
				"asymmetric": 0.8,
			},
			"large": map[string]any{
				"duel":       0.7,
				"team":       1.5,
				"freeForAll": 1.5,
				"asymmetric": 1.2,
			},
		},

		"timing": map[string]any{
			"multipliers": map[string]any{
				"difficulty": map[string]any{
					"easy":   0.8,
					"medium": 1.0,
					"hard":   1.3,
				},
				"progress": map[string]any{
					"early": 1.2,
					"mid":   1.0,
					"late":  0.8,
				},
			},
		},

		// Theatrical pause durations in seconds, referenced from scripts as
		// [beat], [short], [medium], [long], [dramatic].
		"pauses": map[string]any{
			"beat":     0.6,
			"short":    1.0,
			"medium":   2.0,
			"long":     3.5,
			"dramatic": 5.0,
		},

		"variety": map[string]any{
			"assumedRoundSeconds": 90.0,
			"recencyPenalties":    []any{0.2, 0.5, 0.8, 1.0},
			"historyCap":          5,
			"sequenceCap":         10,
			"minWeight":           0.1,
		},

		"fairness": map[string]any{
			"boostThreshold": 5,
			"boostFactor":    2.0,
			"rampPerRound":   0.1,
			"partnerPenalty": 0.5,
			"crossTeamBonus": 1.2,
			"teamCap":        5,
		},

		"patterns": map[string]any{
			"maxConsecutiveRounds": 4,
		},

		"relaxActivities": []any{"stretching", "breathing", "waterBreak", "storyCircle"},
	}
}
