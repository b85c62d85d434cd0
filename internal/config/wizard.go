package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// WizardPaths tells RunWizard where to write the generated files.
type WizardPaths struct {
	Auth string
	Run  string
}

// RunWizard interactively collects auth settings and a first reply rule,
// then saves both files. Existing files are not overwritten unless the
// user confirms.
func RunWizard(paths WizardPaths) (*AuthSettings, []ReplyRule, error) {
	fmt.Println("Let's configure the bot. Register a script app at https://www.reddit.com/prefs/apps first.")
	fmt.Println()

	for _, p := range []string{paths.Auth, paths.Run} {
		if _, err := os.Stat(p); err == nil {
			ok, err := confirm(fmt.Sprintf("%s exists, overwrite", p))
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				return nil, nil, fmt.Errorf("aborted: %s already exists", p)
			}
		}
	}

	auth := &AuthSettings{}
	fields := []struct {
		label  string
		dest   *string
		def    string
		secret bool
	}{
		{"User agent", &auth.UserAgent, "script:impulsecommunicator:v1.0", false},
		{"Client ID", &auth.ClientID, "", false},
		{"Client secret", &auth.ClientSecret, "", true},
		{"Reddit username", &auth.Username, "", false},
		{"Reddit password", &auth.Password, "", true},
		{"Subreddit to watch", &auth.Subreddit, "", false},
	}
	for _, f := range fields {
		v, err := prompt(f.label, f.def, f.secret)
		if err != nil {
			return nil, nil, err
		}
		*f.dest = v
	}

	botName, err := prompt("Bot account to answer (exact name)", "AutoModerator", false)
	if err != nil {
		return nil, nil, err
	}

	onPrompt := promptui.Select{
		Label: "Reply when the bot comments on",
		Items: []string{string(ReplyOnComment), string(ReplyOnPost), string(ReplyOnBoth)},
	}
	_, on, err := onPrompt.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("reply_on selection: %w", err)
	}

	toPrompt := promptui.Select{
		Label: "Post the reply under",
		Items: []string{
			"bot: the bot's own comment",
			"invoker: the comment that summoned the bot",
		},
	}
	toIdx, _, err := toPrompt.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("reply_to selection: %w", err)
	}
	targets := []ReplyTo{ReplyToBot, ReplyToInvoker}

	answersStr, err := prompt("Answers (separated by |)", "", false)
	if err != nil {
		return nil, nil, err
	}

	rule := ReplyRule{
		BotName: botName,
		ReplyOn: ReplyOn(on),
		ReplyTo: targets[toIdx],
		Answers: splitAnswers(answersStr),
	}
	if err := rule.Validate(); err != nil {
		return nil, nil, err
	}
	if rule.Unreachable() {
		fmt.Println("\nNote: reply_on=post with reply_to=invoker never fires; edit run.conf to change it.")
	}

	if err := auth.Save(paths.Auth); err != nil {
		return nil, nil, err
	}
	rules := []ReplyRule{rule}
	if err := SaveRunSettings(paths.Run, rules); err != nil {
		return nil, nil, err
	}

	fmt.Printf("\nAuth settings saved to %s\n", paths.Auth)
	fmt.Printf("Rules saved to %s\n", paths.Run)
	return auth, rules, nil
}

func prompt(label, def string, secret bool) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("value is required")
			}
			return nil
		},
	}
	if secret {
		p.Mask = '*'
	}
	v, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(v), nil
}

func confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// splitAnswers splits a |-separated list and drops blank entries.
func splitAnswers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if token := strings.TrimSpace(part); token != "" {
			out = append(out, token)
		}
	}
	return out
}
