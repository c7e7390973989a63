package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Render renders the status data to a string
func Render(data *Data) string {
	sections := []string{
		renderHeader(data),
		renderProject(data),
		renderValidation(data),
		renderBundles(data),
		renderFunction(data),
	}
	return strings.Join(sections, "\n\n")
}

func line(key, value string) string {
	return "   " + keyStyle.Render(key+": ") + valueStyle.Render(value) + "\n"
}

func renderHeader(data *Data) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("📂 Project: ") + valueStyle.Render(data.ProjectDir) + "\n")
	b.WriteString(titleStyle.Render("📝 Config: ") + valueStyle.Render(data.ConfigPath) + "\n")
	b.WriteString(titleStyle.Render("📦 Version: ") + valueStyle.Render(data.Version))
	return b.String()
}

func renderProject(data *Data) string {
	cfg := data.Config
	var b strings.Builder
	b.WriteString(sectionStyle.Render("⚙️  Function settings:") + "\n")
	b.WriteString(line("Name", cfg.FunctionName))
	b.WriteString(line("Region", orDash(cfg.Region)))
	b.WriteString(line("Package", data.PackageMode()))
	if data.PackageMode() == "zip" {
		b.WriteString(line("Handler", cfg.Handler))
		b.WriteString(line("Runtime", cfg.Runtime))
	} else if uri, err := cfg.ImageURI("", ""); err == nil {
		b.WriteString(line("Image", uri))
	}
	b.WriteString(line("Memory", fmt.Sprintf("%d MB", cfg.MemorySize)))
	b.WriteString(line("Timeout", fmt.Sprintf("%ds", cfg.Timeout)))
	if c := cfg.ReservedConcurrency(); c > 0 {
		b.WriteString(line("Concurrency", fmt.Sprint(c)))
	}
	if cfg.Profile != "" {
		b.WriteString(line("Profile", cfg.Profile))
	}
	if cfg.BucketName != "" {
		b.WriteString(line("Bucket", cfg.BucketName))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderValidation(data *Data) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("🔍 Validation:") + "\n")
	if data.Validation == nil || data.Validation.Valid {
		b.WriteString("   " + successStyle.Render("✓ Configuration is valid"))
		return b.String()
	}
	b.WriteString("   " + errorStyle.Render(fmt.Sprintf("✗ %d error(s)", len(data.Validation.Errors))) + "\n")
	for _, e := range data.Validation.Errors {
		b.WriteString("   " + keyStyle.Render(e.Field+": ") + warningStyle.Render(e.Message) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderBundles(data *Data) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("🗜  Bundles:") + "\n")
	if len(data.Bundles) == 0 {
		b.WriteString("   " + subtleStyle.Render("No bundle built yet"))
		return b.String()
	}
	for _, bundle := range data.Bundles {
		b.WriteString(fmt.Sprintf("   %s %s\n",
			valueStyle.Render(bundle.Name),
			subtleStyle.Render("("+formatSize(bundle.Size)+")")))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderFunction(data *Data) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("☁️  Deployed function:") + "\n")

	switch {
	case data.FunctionError != "":
		b.WriteString("   " + errorStyle.Render("✗ "+data.FunctionError))
		return b.String()
	case data.Function == nil:
		b.WriteString("   " + subtleStyle.Render("Not queried"))
		return b.String()
	case !data.Function.Exists:
		b.WriteString("   " + warningStyle.Render("✗ Not deployed") + "\n")
		b.WriteString("   " + subtleStyle.Render("Run 'pylambda deploy' to create it"))
		return b.String()
	}

	fn := data.Function
	state := fn.State
	if state == "" {
		state = "unknown"
	}
	if state == "Active" {
		b.WriteString("   " + keyStyle.Render("State: ") + successStyle.Render("✓ "+state) + "\n")
	} else {
		b.WriteString("   " + keyStyle.Render("State: ") + warningStyle.Render(state) + "\n")
	}
	b.WriteString(line("ARN", fn.ARN))
	if fn.PackageType != "" {
		b.WriteString(line("Package", strings.ToLower(fn.PackageType)))
	}
	if fn.Runtime != "" {
		b.WriteString(line("Runtime", fn.Runtime))
	}
	b.WriteString(line("Memory", fmt.Sprintf("%d MB", fn.MemorySize)))
	b.WriteString(line("Timeout", fmt.Sprintf("%ds", fn.Timeout)))
	if fn.CodeSize > 0 {
		b.WriteString(line("Code size", formatSize(fn.CodeSize)))
	}
	if fn.LastModified != "" {
		b.WriteString(line("Last modified", fn.LastModified))
	}
	versions := fmt.Sprint(fn.Versions)
	if fn.LatestVersion != "" {
		versions += " (latest: " + fn.LatestVersion + ")"
	}
	b.WriteString(line("Versions", versions))
	if fn.Concurrency > 0 {
		b.WriteString(line("Concurrency", fmt.Sprint(fn.Concurrency)))
	}
	if len(fn.SubnetIDs) > 0 {
		b.WriteString(line("Subnets", strings.Join(fn.SubnetIDs, ", ")))
	}
	if len(fn.Environment) > 0 {
		b.WriteString(line("Environment", strings.Join(sortedKeys(fn.Environment), ", ")))
	}
	if len(fn.Tags) > 0 {
		tags := make([]string, 0, len(fn.Tags))
		for _, k := range sortedKeys(fn.Tags) {
			tags = append(tags, k+"="+fn.Tags[k])
		}
		b.WriteString(line("Tags", strings.Join(tags, ", ")))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatSize formats bytes in human-readable format
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
