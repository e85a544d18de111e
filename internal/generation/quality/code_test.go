package quality

import (
	"reflect"
	"testing"

	"github.com/vietddude/zerofail/internal/core/domain"
)

const cleanJS = "```js\n" + `// add returns the sum of two numbers.
function add(a, b) {
  return a + b;
}

// double multiplies by two.
function double(x) {
  return add(x, x);
}
` + "```\n"

func TestCodeAssessor_Clean(t *testing.T) {
	a := NewCodeAssessor(DefaultConfig().Code)

	score := a.Assess(Submission{Content: cleanJS, Class: domain.ClassCode})
	if score.Critical() {
		t.Fatalf("unexpected critical findings: %+v", score.Findings)
	}
	if score.Overall != 1 {
		t.Errorf("Overall = %v, want 1 (criteria %+v)", score.Overall, score.Criteria)
	}
	if !score.Gate(0.8).Passed {
		t.Error("clean code should pass 0.8")
	}
}

func TestCodeAssessor_CriticalFindings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		finding string
	}{
		{"eval", "// run it\nconst r = eval(userInput);\n", "dynamic code execution"},
		{"python exec", "# run\nexec(payload)\n", "dynamic code execution"},
		{"innerHTML", "// render\nel.innerHTML = html;\n", "HTML injection sink"},
		{"document.write", "// legacy\ndocument.write(banner);\n", "HTML injection sink"},
		{"window eval", "// run\nwindow.eval(x);\n", "dynamic code execution"},
		{"globalThis eval", "// run\nglobalThis.eval(x);\n", "dynamic code execution"},
		{"Function constructor", "// build\nconst f = Function(x)();\n", "dynamic code execution"},
		{"new Function", "// build\nconst f = new Function('a', body);\n", "dynamic code execution"},
		{"shell", "import os\nos.system(cmd)\n", "shell execution"},
		{"os exec family", "import os\nos.execvp('sh', args)\n", "shell execution"},
		{"from os import system", "from os import system\nsystem(cmd)\n", "shell execution"},
		{"from os import popen", "from os import path, popen\npopen(cmd)\n", "shell execution"},
		{"forbidden python import", "import subprocess\nsubprocess.run(['ls'])\n", `forbidden import "subprocess"`},
		{"forbidden node import", "const cp = require('node:child_process');\n", `forbidden import "child_process"`},
		{"forbidden go import", "package main\n\nimport (\n\t\"fmt\"\n\t\"os/exec\"\n)\n", `forbidden import "os/exec"`},
	}

	a := NewCodeAssessor(DefaultConfig().Code)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := a.Assess(Submission{Content: tt.content, Class: domain.ClassCode})
			if !score.Critical() {
				t.Fatalf("expected critical finding, got %+v", score.Findings)
			}
			if score.Overall != 0 {
				t.Errorf("Overall = %v, want 0", score.Overall)
			}
			if score.Gate(0).Passed {
				t.Error("critical finding must fail even a zero threshold")
			}
			if !hasFinding(score, tt.finding) {
				t.Errorf("expected finding %q, got %+v", tt.finding, score.Findings)
			}
		})
	}
}

func TestCodeAssessor_MethodNamedExecIsNotCritical(t *testing.T) {
	a := NewCodeAssessor(DefaultConfig().Code)
	score := a.Assess(Submission{Content: "// match\nconst m = re.exec(line);\n", Class: domain.ClassCode})
	if score.Critical() {
		t.Errorf("regex exec flagged as critical: %+v", score.Findings)
	}
}

func TestCodeAssessor_AllowedImports(t *testing.T) {
	cfg := DefaultConfig().Code
	cfg.AllowedImports = []string{"fmt", "strings"}
	a := NewCodeAssessor(cfg)

	ok := a.Assess(Submission{Content: "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(1) }\n"})
	if ok.Critical() {
		t.Errorf("approved import flagged: %+v", ok.Findings)
	}

	bad := a.Assess(Submission{Content: "package main\n\nimport \"net/http\"\n\nfunc main() {}\n"})
	if !hasFinding(bad, `unapproved import "net/http"`) {
		t.Errorf("expected unapproved import finding, got %+v", bad.Findings)
	}
}

func TestCodeAssessor_Blocklist(t *testing.T) {
	a := NewCodeAssessor(DefaultConfig().Code)
	score := a.Assess(Submission{Content: "// fetch\nconst request = require('request');\nrequest(url);\n"})

	if score.Critical() {
		t.Fatalf("blocklisted dependency must not be critical: %+v", score.Findings)
	}
	if got := score.Criteria[CriterionDependencies]; got != 0.5 {
		t.Errorf("dependency_safety = %v, want 0.5", got)
	}
}

func TestCodeAssessor_Nesting(t *testing.T) {
	cfg := DefaultConfig().Code
	cfg.MaxNesting = 2
	a := NewCodeAssessor(cfg)

	deep := "// deep\nif (a) {\n if (b) {\n  if (c) {\n   if (d) {\n    go();\n   }\n  }\n }\n}\n"
	score := a.Assess(Submission{Content: deep})
	if score.Criteria[CriterionComplexity] >= 1 {
		t.Errorf("complexity = %v, want penalty for nesting", score.Criteria[CriterionComplexity])
	}
	if !hasFinding(score, "nesting depth 4 exceeds 2") {
		t.Errorf("missing nesting finding: %+v", score.Findings)
	}
}

func TestExtractImports(t *testing.T) {
	src := []string{
		`import os.path`,
		`from collections import OrderedDict`,
		`import React, { useState } from 'react';`,
		`import '@scope/pkg/sub';`,
		`const x = require("lodash/fp");`,
		`import "./local";`,
		`import (`,
		`	"fmt"`,
		`	gh "github.com/acme/tool/pkg"`,
		`)`,
	}

	want := []string{"@scope/pkg", "collections", "fmt", "github.com/acme/tool/pkg", "lodash", "os", "react"}
	if got := extractImports(src); !reflect.DeepEqual(got, want) {
		t.Errorf("extractImports = %v, want %v", got, want)
	}
}
