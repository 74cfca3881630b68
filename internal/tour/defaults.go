package tour

// Onboarding step indices.
const (
	StepAddFirstChannel   Step = -1
	StepPostPopover       Step = 0
	StepChannelPopover    Step = 1
	StepAddChannelPopover Step = 2
	StepMenuPopover       Step = 3
	StepProductSwitcher   Step = 4
	StepSettings          Step = 5
	StepStartTrial        Step = 6
)

// Collapsed-reply-threads tutorial step indices.
const (
	StepCRTWelcome Step = 0
	StepCRTList    Step = 1
	StepCRTUnread  Step = 2
)

// Thread pane tutorial step indices.
const (
	StepThreadsPane Step = 0
)

// DefaultDefinitions returns the built-in tour catalogue.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Category:       Onboarding,
			AutoTourStatus: "tutorial_step_auto_tour_status",
			Steps: []StepDef{
				{Name: "ADD_FIRST_CHANNEL", Step: StepAddFirstChannel},
				{Name: "POST_POPOVER", Step: StepPostPopover},
				{Name: "CHANNEL_POPOVER", Step: StepChannelPopover},
				{Name: "ADD_CHANNEL_POPOVER", Step: StepAddChannelPopover},
				{Name: "MENU_POPOVER", Step: StepMenuPopover},
				{Name: "PRODUCT_SWITCHER", Step: StepProductSwitcher},
				{Name: "SETTINGS", Step: StepSettings},
				{Name: "START_TRIAL", Step: StepStartTrial, AdminOnly: true},
			},
		},
		{
			Category:       CRTTutorial,
			AutoTourStatus: "crt_tutorial_auto_tour_status",
			Steps: []StepDef{
				{Name: "WELCOME_POPOVER", Step: StepCRTWelcome},
				{Name: "LIST_POPOVER", Step: StepCRTList},
				{Name: "UNREAD_POPOVER", Step: StepCRTUnread},
			},
		},
		{
			Category: CRTThreadPane,
			Steps: []StepDef{
				{Name: "THREADS_PANE_POPOVER", Step: StepThreadsPane},
			},
		},
		{
			Category: StartTrial,
			Steps: []StepDef{
				{Name: "START_TRIAL", Step: 0},
			},
		},
	}
}

// DefaultRegistry returns a [Registry] populated with [DefaultDefinitions].
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range DefaultDefinitions() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}
