package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benchscope/benchscope/core/domain"
	"github.com/benchscope/benchscope/core/port/out"
)

// candidateCard renders one high-priority candidate as an interactive card.
func (n *FeishuNotifier) candidateCard(c domain.ScoredCandidate) map[string]any {
	var elements []map[string]any

	if c.HeroImageKey != "" {
		elements = append(elements, map[string]any{
			"tag":     "img",
			"img_key": c.HeroImageKey,
			"alt":     map[string]any{"tag": "plain_text", "content": c.Title},
		})
	}

	summary := c.Abstract
	if len(summary) > 300 {
		summary = summary[:300] + "..."
	}
	elements = append(elements, map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": summary},
	})

	details := []string{
		fmt.Sprintf("**总分:** %.1f (%s)", c.TotalScore(), c.Priority()),
		fmt.Sprintf("**来源:** %s", c.Source),
		fmt.Sprintf("**任务领域:** %s", c.TaskDomain),
		fmt.Sprintf("**维度:** 活跃 %.1f · 复现 %.1f · 许可 %.1f · 新颖 %.1f · 适配 %.1f",
			c.ActivityScore, c.ReproducibilityScore, c.LicenseScore, c.NoveltyScore, c.RelevanceScore),
	}
	if c.Metrics != "" {
		details = append(details, "**评估指标:** "+c.Metrics)
	}
	if c.Institution != "" {
		details = append(details, "**机构:** "+c.Institution)
	}
	if c.GitHubStars > 0 {
		details = append(details, fmt.Sprintf("**GitHub Stars:** %d", c.GitHubStars))
	}
	elements = append(elements, map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": strings.Join(details, "\n")},
	})

	actions := []map[string]any{{
		"tag":  "button",
		"text": map[string]any{"tag": "plain_text", "content": "查看详情"},
		"type": "primary",
		"url":  c.URL,
	}}
	if c.GitHubURL != "" && c.GitHubURL != c.URL {
		actions = append(actions, map[string]any{
			"tag":  "button",
			"text": map[string]any{"tag": "plain_text", "content": "GitHub"},
			"type": "default",
			"url":  c.GitHubURL,
		})
	}
	elements = append(elements, map[string]any{"tag": "action", "actions": actions})

	return map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"template": "red",
			"title":    map[string]any{"tag": "plain_text", "content": "🔥 高优先级基准: " + c.Title},
		},
		"elements": elements,
	}
}

// summaryCard renders the aggregate run report.
func (n *FeishuNotifier) summaryCard(stats out.RunStats, high, medium, all []domain.ScoredCandidate) map[string]any {
	highCount, mediumCount, lowCount := 0, 0, 0
	for _, c := range all {
		switch c.Priority() {
		case domain.PriorityHigh:
			highCount++
		case domain.PriorityMedium:
			mediumCount++
		default:
			lowCount++
		}
	}

	lines := []string{
		fmt.Sprintf("**运行:** %s", stats.RunID),
		fmt.Sprintf("**漏斗:** 采集 %d → 去重 %d → 预筛 %d → 评分 %d → 入库 %d",
			stats.Collected, stats.Deduped, stats.Prefiltered, stats.Scored, stats.Saved),
		fmt.Sprintf("**优先级分布:** 高 %d · 中 %d · 低 %d", highCount, mediumCount, lowCount),
	}
	if stats.FallbackN > 0 {
		lines = append(lines, fmt.Sprintf("**规则兜底评分:** %d", stats.FallbackN))
	}

	if len(stats.SourceCounts) > 0 {
		sources := make([]string, 0, len(stats.SourceCounts))
		for source := range stats.SourceCounts {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		parts := make([]string, 0, len(sources))
		for _, source := range sources {
			counts := stats.SourceCounts[source]
			parts = append(parts, fmt.Sprintf("%s %d/%d", source, counts[1], counts[0]))
		}
		lines = append(lines, "**来源:** "+strings.Join(parts, " · "))
	}

	elements := []map[string]any{{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": strings.Join(lines, "\n")},
	}}

	if len(medium) > 0 {
		listed := medium
		if len(listed) > summaryMediumLimit {
			listed = listed[:summaryMediumLimit]
		}
		items := make([]string, 0, len(listed))
		for _, c := range listed {
			items = append(items, fmt.Sprintf("- [%s](%s) %.1f", c.Title, c.URL, c.TotalScore()))
		}
		elements = append(elements,
			map[string]any{"tag": "hr"},
			map[string]any{
				"tag":  "div",
				"text": map[string]any{"tag": "lark_md", "content": "**中优先级候选:**\n" + strings.Join(items, "\n")},
			})
	}

	template := "blue"
	if len(high) > 0 {
		template = "orange"
	}
	return map[string]any{
		"config": map[string]any{"wide_screen_mode": true},
		"header": map[string]any{
			"template": template,
			"title":    map[string]any{"tag": "plain_text", "content": "📊 基准雷达日报"},
		},
		"elements": elements,
	}
}
