package prefilter

// Minimum lengths enforced before any keyword checks run.
const (
	MinTitleLength    = 10
	MinAbstractLength = 20
	MinReadmeLength   = 500
	RecentDays        = 90
)

// Sources that bypass the keyword and benchmark-signal rules entirely.
// These feeds are curated upstream, so only structural checks apply.
var trustedSources = map[string]struct{}{
	"helm":        {},
	"techempower": {},
	"dbengines":   {},
}

// Sources whose abstracts are legitimately short official descriptions.
var abstractLengthExempt = map[string]struct{}{
	"helm":             {},
	"semantic_scholar": {},
	"huggingface":      {},
}

// requiredKeywords: at least one must appear in title+abstract.
var requiredKeywords = []string{
	"code",
	"coding",
	"program",
	"programming",
	"software",
	"repository",
	"web",
	"browser",
	"gui",
	"ui",
	"automation",
	"agent",
	"multi-agent",
	"tool",
	"api",
	"workflow",
	"performance",
	"benchmark",
	"framework",
	"database",
	"latency",
	"throughput",
	"optimization",
	"http",
	"server",
	"service",
	"endpoint",
	"query",
	"storage",
	"reasoning",
	"math",
	"logic",
}

// excludedKeywords: any hit filters the candidate.
var excludedKeywords = []string{
	"translation",
	"summarization",
	"sentiment analysis",
	"text classification",
	"dialogue system",
	"conversational ai",
	"chatbot tutorial",
	"speech recognition",
	"audio processing",
	"image classification",
	"computer vision",
	"video processing",
	"awesome list",
	"curated list",
	"collection of resources",
	"list of tools",
	"tutorial series",
	"online course",
	"learning guide",
	"sdk wrapper",
	"api wrapper library",
}

// benchmarkPositiveSignals indicate the text actually describes a benchmark.
var benchmarkPositiveSignals = []string{
	"benchmark",
	"evaluation",
	"eval",
	"leaderboard",
	"test set",
	"test suite",
	"dataset",
	"baseline",
	"metric",
}

// strongBenchmarkSignals override exclusion patterns in the
// benchmark-characteristics check.
var strongBenchmarkSignals = []string{
	"benchmark",
	"evaluation",
	"leaderboard",
	"test set",
	"dataset",
}

// characteristicExcludePatterns mark framework papers, resource lists,
// tutorials and unrelated application domains.
var characteristicExcludePatterns = []string{
	"framework for",
	"we propose a",
	"we implement",
	"we develop",
	"a novel system",
	"agent framework",
	"gui agent",
	"awesome",
	"curated list",
	"collection of",
	"list of tools",
	"list of resources",
	"tutorial",
	"course",
	"learning path",
	"how to",
	"robot",
	"robotics",
	"autonomous vehicle",
	"medical",
	"healthcare",
}

// Tool-repo detection.
var toolTitleSuffixes = []string{
	"-lib",
	"-library",
	"-client",
	"-sdk",
	"-wrapper",
	"-tool",
	"-utils",
	"-helper",
	"-connector",
	"-adapter",
	"-parser",
	"-tokenizer",
	"-splitter",
	"-package",
}

var toolDeclarationPhrases = []string{
	"this is a library",
	"a python library",
	"a javascript library",
	"a lightweight library",
	"command-line tool",
	"cli tool",
	"sdk for",
	"client library",
	"wrapper around",
	"wrapper for",
	"helper library",
	"utility library",
}

var toolLikeKeywords = []string{
	"sdk",
	"toolkit",
	"library",
	"plugin",
	"extension",
	"middleware",
	"protocol implementation",
	"mcp server",
	"api client",
}

// benchmarkDatasetKeywords are the signals that rescue a tool-looking or
// algorithm-looking candidate.
var benchmarkDatasetKeywords = []string{
	"benchmark",
	"dataset",
	"evaluation",
	"leaderboard",
	"test set",
	"test suite",
}

var strongToolOverrideSignals = []string{
	"benchmark dataset",
	"evaluation benchmark",
	"test set",
	"leaderboard",
	"benchmark suite",
	"evaluation suite",
}

// Algorithm-paper detection (arXiv only).
var algoMethodPhrases = []string{
	"we propose",
	"we present a novel",
	"we introduce a new method",
	"a novel approach",
	"a new algorithm",
	"our method outperforms",
	"state-of-the-art performance on",
	"improves performance by",
	"fine-tuning strategy",
	"training framework",
	"learning algorithm",
}

// Technical-report detection (arXiv only).
var technicalReportPatterns = []string{
	"technical report",
	"model card",
	"release notes",
	"announcing",
	"introducing",
}

var modelReleaseKeywords = []string{
	"gpt",
	"llama",
	"qwen",
	"gemini",
	"claude",
	"mistral",
	"deepseek",
	"foundation model",
	"language model family",
}

var benchmarkTitleSignals = []string{
	"benchmark",
	"bench",
	"evaluation",
	"leaderboard",
	"test set",
}

// Non-MGX application detection (arXiv only).
var nonMgxApplicationKeywords = []string{
	"medical",
	"healthcare",
	"clinical",
	"biology",
	"protein",
	"drug discovery",
	"chemistry",
	"robotics",
	"autonomous driving",
	"recommendation system",
	"financial trading",
	"legal document",
	"education assessment",
}

var mgxCoreKeywords = []string{
	"code generation",
	"code completion",
	"code review",
	"multi-agent",
	"agent collaboration",
	"tool use",
	"api call",
	"function call",
	"web automation",
	"gui automation",
	"browser automation",
	"software engineering",
	"programming",
}

// GitHub quality check extras.
var curatedListPatterns = []string{
	"curated list",
	"collection of",
	"list of tools",
	"awesome list",
}

var githubBenchmarkFeatures = []string{
	"benchmark",
	"evaluation",
	"test set",
	"dataset",
	"leaderboard",
	"baseline",
	"performance",
	"comparison",
	"vs",
	"versus",
	"testing",
	"test suite",
	"test framework",
	"ranking",
	"rating",
	"score",
}
