package helper

import (
	"strings"
	"unicode"
)

// SampleHandbookHeadings are the section headings of SampleHandbook.
var SampleHandbookHeadings = []string{
	"1. Installation Guide",
	"2. Operating The Cluster",
	"3. Incident Response",
}

var sampleVocabulary = [][]string{
	{"installer", "package", "binary", "download", "checksum", "archive", "directory", "permissions", "service", "account",
		"configuration", "template", "environment", "variables", "startup", "script", "version", "upgrade", "dependency", "library"},
	{"cluster", "node", "replica", "scheduler", "capacity", "memory", "storage", "volume", "network", "latency",
		"throughput", "metrics", "dashboard", "rollout", "canary", "traffic", "shard", "rebalance", "quota", "workload"},
	{"incident", "alert", "pager", "escalation", "runbook", "outage", "severity", "timeline", "postmortem", "mitigation",
		"rollback", "customer", "status", "communication", "handover", "responder", "triage", "diagnosis", "recovery", "review"},
}

// sampleGeneral words are shared by all sections so that sentences overlap
// partially without any two sharing most of their words.
var sampleGeneral = []string{
	"team", "owner", "request", "change", "window", "policy", "audit", "report", "schedule", "budget",
	"ticket", "approval", "procedure", "checklist", "record", "baseline", "threshold", "target", "estimate", "summary",
	"priority", "deadline", "region", "tenant", "operator", "engineer", "manager", "vendor", "contract", "license",
	"inventory", "backup", "snapshot", "certificate", "secret", "token", "firewall", "gateway", "proxy", "endpoint",
}

var sampleConnectors = []string{"and", "with", "for", "across"}

const (
	sampleParagraphs = 4
	sampleSentences  = 5
	sampleWords      = 20
)

// SampleHandbookSentence returns one generated sentence of SampleHandbook.
// Content words alternate between a window of the section vocabulary and a
// window of the shared words, both shifted by the sentence position, so no
// two sentences share more than a third of their word sets.
func SampleHandbookSentence(section, paragraph, sentence int) string {
	section %= len(sampleVocabulary)
	vocabulary := sampleVocabulary[section]
	seed := paragraph*sampleSentences + sentence

	words := make([]string, 0, sampleWords)
	c := 0
	for k := 0; k < sampleWords; k++ {
		if k%4 == 3 {
			words = append(words, sampleConnectors[(seed+k)%len(sampleConnectors)])
			continue
		}
		if c%2 == 0 {
			words = append(words, vocabulary[(seed+c/2)%len(vocabulary)])
		} else {
			words = append(words, sampleGeneral[(seed*6+section*13+c/2)%len(sampleGeneral)])
		}
		c++
	}
	first := []rune(words[0])
	first[0] = unicode.ToUpper(first[0])
	words[0] = string(first)
	return strings.Join(words, " ") + "."
}

// SampleHandbook returns a plain text document of three numbered sections
// with four paragraphs of five sentences each, about 1200 words in total.
func SampleHandbook() string {
	sections := make([]string, 0, len(SampleHandbookHeadings))
	for s, heading := range SampleHandbookHeadings {
		blocks := []string{heading}
		for p := 0; p < sampleParagraphs; p++ {
			sentences := make([]string, 0, sampleSentences)
			for i := 0; i < sampleSentences; i++ {
				sentences = append(sentences, SampleHandbookSentence(s, p, i))
			}
			blocks = append(blocks, strings.Join(sentences, " "))
		}
		sections = append(sections, strings.Join(blocks, "\n\n"))
	}
	return strings.Join(sections, "\n\n") + "\n"
}
