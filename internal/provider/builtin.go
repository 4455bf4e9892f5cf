package provider

import "github.com/vaultsandbox/vsb-agent/internal/browser"

// Gmail is functionally automatable: a saved session is restored (or the
// configured credentials are entered) and the compose flow runs end to end.
func Gmail() Definition {
	return Definition{
		Kind: KindGmail,
		Name: "Gmail",
		URL:  "https://mail.google.com/mail/u/0/#inbox",
		Selectors: map[Target]browser.SelectorSet{
			TargetCompose: browser.NewSelectorSet(
				"div[gh='cm']",
				"div[role='button'][aria-label*='Compose']",
				"text=Compose",
			),
			TargetRecipient: browser.NewSelectorSet(
				"input[aria-label*='To']",
				"input[peoplekit-id]",
				"textarea[name='to']",
			),
			TargetSubject: browser.NewSelectorSet(
				"input[name='subjectbox']",
				"input[aria-label*='Subject']",
			),
			TargetBody: browser.NewSelectorSet(
				"div[aria-label*='Message Body']",
				"div[role='textbox'][contenteditable='true']",
			),
			TargetSend: browser.NewSelectorSet(
				"div[aria-label*='Send']",
				"div[role='button'][data-tooltip*='Send']",
				"text=Send",
			),
			TargetLogin: browser.NewSelectorSet(
				"input[type='email']",
				"#identifierId",
			),
			TargetPassword: browser.NewSelectorSet(
				"input[type='password']",
				"input[name='Passwd']",
			),
			TargetNext: browser.NewSelectorSet(
				"#identifierNext",
				"#passwordNext",
				"text=Next",
			),
		},
		SuggestionKey: "Enter",
		SendShortcut:  "Control+Enter",
		LoginSteps: []string{
			"Checking saved session",
			"Loading inbox",
		},
		Checkpoint: 0,
		Auth:       Allow(),
	}
}

// Outlook models a provider with stringent bot detection: by default its
// authentication policy refuses automated sessions at the detection step.
func Outlook() Definition {
	return Definition{
		Kind: KindOutlook,
		Name: "Outlook",
		URL:  "https://outlook.live.com/mail/0/",
		Selectors: map[Target]browser.SelectorSet{
			TargetCompose: browser.NewSelectorSet(
				"button[aria-label*='New message']",
				"button[aria-label*='New mail']",
				"text=New mail",
			),
			TargetRecipient: browser.NewSelectorSet(
				"input[placeholder*='Add recipients']",
				"div[aria-label='To']",
			),
			TargetSubject: browser.NewSelectorSet(
				"input[placeholder*='Add a subject']",
				"input[aria-label*='Subject']",
			),
			TargetBody: browser.NewSelectorSet(
				"div[aria-label*='Message body']",
				"div[role='textbox']",
			),
			TargetSend: browser.NewSelectorSet(
				"button[aria-label*='Send']",
				"button[title*='Send']",
			),
			TargetLogin: browser.NewSelectorSet(
				"input[name='loginfmt']",
				"input[type='email']",
			),
			TargetPassword: browser.NewSelectorSet(
				"input[name='passwd']",
				"input[type='password']",
			),
			TargetNext: browser.NewSelectorSet(
				"#idSIButton9",
				"input[type='submit']",
			),
		},
		SuggestionKey: "Enter",
		SendShortcut:  "Control+Enter",
		LoginSteps: []string{
			"Loading Office 365 login page",
			"Checking existing sessions",
			"Detecting automation patterns",
			"Presenting password challenge",
			"Verifying credentials",
			"Checking multi-factor authentication requirements",
		},
		Checkpoint: 2,
		Auth:       RefuseBotDetection(),
	}
}
