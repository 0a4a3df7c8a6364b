package action

// DefaultFamilies is the built-in COLREGs action table.
func DefaultFamilies() []Family {
	return []Family{
		{
			Name:     "restricted visibility speed",
			Rules:    []string{"rule_19"},
			Action:   "Reduce speed immediately and have engines ready for manoeuvre",
			Priority: 1,
			Details:  map[string]string{"target_speed": "5 knots"},
		},
		{
			Name:     "give-way starboard alteration",
			Rules:    []string{"rule_15", "rule_16"},
			Action:   "Alter course to starboard early and substantially, avoid crossing ahead",
			Priority: 2,
			Role:     RoleGiveWay,
			Details:  map[string]string{"degree_change": "30 degrees or more"},
		},
		{
			Name:     "head-on starboard alteration",
			Rules:    []string{"rule_14"},
			Action:   "Alter course to starboard to pass port to port",
			Priority: 2,
			Role:     RoleGiveWay,
			Details:  map[string]string{"degree_change": "30 degrees or more"},
		},
		{
			Name:     "overtaking keep clear",
			Rules:    []string{"rule_13"},
			Action:   "Keep out of the way of the vessel being overtaken",
			Priority: 2,
			Role:     RoleGiveWay,
		},
		{
			Name:     "fishing vessel keep clear",
			Rules:    []string{"rule_18"},
			Action:   "Keep clear of the vessel engaged in fishing",
			Priority: 2,
			Role:     RoleGiveWay,
		},
		{
			Name:     "early substantial action",
			Rules:    []string{"rule_08"},
			Action:   "Take early action large enough to be readily apparent",
			Priority: 3,
		},
		{
			Name:     "safe speed",
			Rules:    []string{"rule_06"},
			Action:   "Proceed at a safe speed for the prevailing conditions",
			Priority: 3,
		},
		{
			Name:     "stand-on",
			Rules:    []string{"rule_17"},
			Action:   "Keep course and speed while monitoring the give-way vessel",
			Priority: 3,
			Role:     RoleStandOn,
		},
		{
			Name:     "narrow channel",
			Rules:    []string{"rule_09"},
			Action:   "Keep to the starboard side of the channel",
			Priority: 3,
		},
		{
			Name:     "traffic separation",
			Rules:    []string{"rule_10"},
			Action:   "Proceed in the appropriate traffic lane",
			Priority: 3,
		},
		{
			Name:     "risk assessment",
			Rules:    []string{"rule_07"},
			Action:   "Confirm risk of collision by radar plotting",
			Priority: 4,
		},
		{
			Name:     "look-out",
			Rules:    []string{"rule_05"},
			Action:   "Maintain a proper look-out by sight, hearing and radar",
			Priority: 4,
		},
		{
			Name:     "fog signals",
			Rules:    []string{"rule_35"},
			Action:   "Sound one prolonged blast at intervals of not more than 2 minutes",
			Priority: 4,
			Details:  map[string]string{"signal_type": "one prolonged blast"},
		},
	}
}
