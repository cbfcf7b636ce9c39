package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"slate/internal/model"
	"slate/internal/service"
)

func renderToday(date model.Date, progress service.Progress, pending []model.DailyTask, topN int, completed []model.DailyTask) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📅 <b>Today</b> · %s %s\n", date.Weekday().String()[:3], date))
	builder.WriteString(progressBar(progress))
	builder.WriteString("\n\n")

	if progress.Total == 0 {
		builder.WriteString("Nothing planned yet. Pull something with /backlog or add /custom.")
		return builder.String()
	}

	if len(pending) == 0 {
		builder.WriteString("🎉 All done for today.\n")
	}
	for i, dt := range pending {
		if i == topN {
			builder.WriteString("\n<i>Later</i>\n")
		}
		builder.WriteString(fmt.Sprintf("%d. %s", i+1, service.FormatDailyTask(dt)))
	}

	if len(completed) > 0 {
		builder.WriteString("\n<b>Completed</b>\n")
		for _, dt := range completed {
			builder.WriteString(service.FormatDailyTask(dt))
		}
	}
	return strings.TrimSpace(builder.String())
}

// progressBar draws a ten-cell completion bar.
func progressBar(p service.Progress) string {
	const cells = 10
	filled := 0
	if p.Total > 0 {
		filled = p.Completed * cells / p.Total
	}
	return fmt.Sprintf("%s%s %d/%d", strings.Repeat("▓", filled), strings.Repeat("░", cells-filled), p.Completed, p.Total)
}

func renderBacklog(tasks []model.Task, today model.Date) string {
	var builder strings.Builder
	builder.WriteString("📥 <b>Backlog</b>\n")
	builder.WriteString("Tap a task to plan it for today, or use /plan &lt;n&gt; HH:MM.\n\n")
	for i, task := range tasks {
		builder.WriteString(fmt.Sprintf("%d. %s", i+1, service.FormatDue(task, today)))
	}
	return strings.TrimSpace(builder.String())
}

func renderDueSoon(tasks []model.Task, today model.Date) string {
	if len(tasks) == 0 {
		return "📆 Nothing due soon."
	}
	var builder strings.Builder
	builder.WriteString("📆 <b>Due soon</b>\n")
	for _, task := range tasks {
		builder.WriteString(service.FormatDue(task, today))
	}
	return strings.TrimSpace(builder.String())
}

func renderTaskSaved(task *model.Task) string {
	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", task.Priority))
	if task.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", *task.DueDate))
	}
	if rule := task.Recurrence; rule != nil {
		repeat := "every day"
		if rule.Frequency == model.FrequencyWeekly {
			repeat = "every " + rule.Weekdays()
		}
		if rule.Time != nil {
			repeat += " at " + *rule.Time
		}
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", repeat))
	} else {
		summary.WriteString("Find it in /backlog.\n")
	}
	return strings.TrimSpace(summary.String())
}

func reviewConfirmation(title string, outcome model.ReviewOutcome) string {
	name := escape(normalizeTitle(title))
	switch outcome {
	case model.OutcomeMoved:
		return fmt.Sprintf("➡️ %s moves to tomorrow.", name)
	case model.OutcomeBacklogged:
		return fmt.Sprintf("📥 %s is back in the backlog.", name)
	default:
		return fmt.Sprintf("🗑 %s dropped.", name)
	}
}

var errBadArgs = errors.New("bad arguments")

// parseIndex reads a 1-based list position.
func parseIndex(args string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return 0, errBadArgs
	}
	return n, nil
}

// parsePlanArgs reads "<n> [HH:MM]".
func parsePlanArgs(args string) (int, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, "", errBadArgs
	}
	n, err := parseIndex(fields[0])
	if err != nil {
		return 0, "", err
	}
	if len(fields) == 1 {
		return n, "", nil
	}
	if _, _, err := model.ParseClock(fields[1]); err != nil {
		return 0, "", errBadArgs
	}
	return n, fields[1], nil
}

// parseCustomArgs splits an optional leading "HH:MM" off a custom item title.
func parseCustomArgs(text string) (clock, title string) {
	text = strings.TrimSpace(text)
	first, rest, found := strings.Cut(text, " ")
	if found {
		if _, _, err := model.ParseClock(first); err == nil {
			return first, strings.TrimSpace(rest)
		}
	}
	return "", text
}

var weekdayNames = map[string]int{
	"sun": 0, "sunday": 0,
	"mon": 1, "monday": 1,
	"tue": 2, "tues": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thur": 4, "thurs": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
}

// parseWeekdays reads a list like "mon, thu" or "1 4" into sorted 0=Sun..6=Sat
// indices without duplicates.
func parseWeekdays(text string) ([]int, error) {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil, errBadArgs
	}
	seen := make(map[int]bool, len(fields))
	days := make([]int, 0, len(fields))
	for _, field := range fields {
		day, ok := weekdayNames[field]
		if !ok {
			n, err := strconv.Atoi(field)
			if err != nil || n < 0 || n > 6 {
				return nil, fmt.Errorf("%w: unknown day %q", errBadArgs, field)
			}
			day = n
		}
		if seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Ints(days)
	return days, nil
}

func parsePriority(text string) (model.Priority, bool) {
	value := strings.TrimSpace(strings.ToLower(text))
	switch value {
	case strings.ToLower(btnHigh), "high", "h":
		return model.PriorityHigh, true
	case strings.ToLower(btnMedium), "medium", "m":
		return model.PriorityMedium, true
	case strings.ToLower(btnLow), "low", "l":
		return model.PriorityLow, true
	}
	return "", false
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	clean = normalizeTitle(clean)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func escape(s string) string {
	return html.EscapeString(s)
}
