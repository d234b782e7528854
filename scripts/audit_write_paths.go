package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Audits the service layer for telemetry writes that bypass the ingestion
// aggregate. Session, record, and alert rows are created inside the
// aggregate's transaction; a service method calling those repo writers
// directly breaks the single-writer rule and shows up in this report.
//
// Usage: go run scripts/audit_write_paths.go [repo root]

type repoField struct {
	Name     string `json:"name"`
	RepoType string `json:"repo_type"`
	Domain   string `json:"domain"`
	Guarded  bool   `json:"guarded"`
}

type methodStats struct {
	StructName               string   `json:"struct_name"`
	Method                   string   `json:"method"`
	File                     string   `json:"file"`
	Line                     int      `json:"line"`
	GuardedRepoWriteCalls    int      `json:"guarded_repo_write_calls"`
	GuardedRepoFieldsWritten []string `json:"guarded_repo_fields_written"`
	AggregateWriteCalls      int      `json:"aggregate_write_calls"`
}

type auditReport struct {
	GuardedRepoWriteCallsites int           `json:"guarded_repo_write_callsites"`
	AggregateWriteCallsites   int           `json:"aggregate_write_callsites"`
	Violations                []methodStats `json:"violations"`
	Methods                   []methodStats `json:"methods"`
	GuardedRepoFieldInventory []repoField   `json:"guarded_repo_field_inventory"`
}

// Repo methods that insert telemetry rows. MarkRead and Resolve are absent:
// read-side alert mutations are service-owned.
var guardedWriteMethods = map[string]bool{
	"Create":                  true,
	"CreateMany":              true,
	"CreateVitalSamples":      true,
	"CreateMotionSamples":     true,
	"CreateHealthAssessment":  true,
	"CreateBehaviorAnalysis":  true,
	"CreateMediaAnalysis":     true,
	"CreateAudioEvents":       true,
	"CreateVideoEvents":       true,
	"CreateSummaryStatistics": true,
	"CreateSystemStatus":      true,
}

var aggregateWriteMethods = map[string]bool{
	"IngestSession": true,
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	servicesDir := filepath.Join(root, "internal", "services")
	fset := token.NewFileSet()

	pkgs, err := parser.ParseDir(fset, servicesDir, func(fi os.FileInfo) bool {
		name := fi.Name()
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}, 0)
	if err != nil {
		exitf("parse dir: %v", err)
	}

	pkg, ok := pkgs["services"]
	if !ok {
		exitf("services package not found in %s", servicesDir)
	}

	fieldsByStruct := map[string]structFields{}
	for _, f := range pkg.Files {
		collectStructFields(f, fieldsByStruct)
	}

	var methods []methodStats
	for filePath, f := range pkg.Files {
		rel, err := filepath.Rel(root, filePath)
		if err != nil {
			rel = filePath
		}
		collectMethodStats(fset, f, rel, fieldsByStruct, &methods)
	}

	report := buildReport(fieldsByStruct, methods)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitf("marshal report: %v", err)
	}
	fmt.Println(string(out))
	if len(report.Violations) > 0 {
		os.Exit(1)
	}
}

type structFields struct {
	RepoFields      map[string]repoField
	AggregateFields map[string]string
}

func collectStructFields(file *ast.File, out map[string]structFields) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			sf := structFields{
				RepoFields:      map[string]repoField{},
				AggregateFields: map[string]string{},
			}
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 {
					continue
				}
				fieldName := field.Names[0].Name
				sel, ok := field.Type.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				pkgIdent, ok := sel.X.(*ast.Ident)
				if !ok {
					continue
				}
				switch pkgIdent.Name {
				case "repos":
					repoType := strings.TrimSpace(sel.Sel.Name)
					if !strings.HasSuffix(repoType, "Repo") {
						continue
					}
					domain, guarded := domainForRepoType(repoType)
					sf.RepoFields[fieldName] = repoField{
						Name:     fieldName,
						RepoType: repoType,
						Domain:   domain,
						Guarded:  guarded,
					}
				case "domainagg":
					aggType := strings.TrimSpace(sel.Sel.Name)
					if !strings.HasSuffix(aggType, "Aggregate") {
						continue
					}
					sf.AggregateFields[fieldName] = aggType
				}
			}
			if len(sf.RepoFields) > 0 || len(sf.AggregateFields) > 0 {
				out[ts.Name.Name] = sf
			}
		}
	}
}

func collectMethodStats(
	fset *token.FileSet,
	file *ast.File,
	relFile string,
	fieldsByStruct map[string]structFields,
	out *[]methodStats,
) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Body == nil || len(fd.Recv.List) == 0 {
			continue
		}

		recvName, recvType := recvInfo(fd.Recv.List[0])
		if recvType == "" || recvName == "" {
			continue
		}
		sf, ok := fieldsByStruct[recvType]
		if !ok {
			continue
		}

		guardedCalls := 0
		guardedFields := map[string]bool{}
		aggCalls := 0

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnSel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			rcvSel, ok := fnSel.X.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			baseIdent, ok := rcvSel.X.(*ast.Ident)
			if !ok || baseIdent.Name != recvName {
				return true
			}

			field := strings.TrimSpace(rcvSel.Sel.Name)
			method := strings.TrimSpace(fnSel.Sel.Name)

			if rf, ok := sf.RepoFields[field]; ok && rf.Guarded && guardedWriteMethods[method] {
				guardedCalls++
				guardedFields[field] = true
				return true
			}

			if _, ok := sf.AggregateFields[field]; ok && aggregateWriteMethods[method] {
				aggCalls++
			}
			return true
		})

		if guardedCalls == 0 && aggCalls == 0 {
			continue
		}

		line := fset.Position(fd.Pos()).Line
		*out = append(*out, methodStats{
			StructName:               recvType,
			Method:                   fd.Name.Name,
			File:                     filepath.ToSlash(relFile),
			Line:                     line,
			GuardedRepoWriteCalls:    guardedCalls,
			GuardedRepoFieldsWritten: sortedKeys(guardedFields),
			AggregateWriteCalls:      aggCalls,
		})
	}
}

func buildReport(fieldsByStruct map[string]structFields, methods []methodStats) auditReport {
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].File == methods[j].File {
			return methods[i].Line < methods[j].Line
		}
		return methods[i].File < methods[j].File
	})

	var report auditReport
	report.Methods = methods

	guardedRepoFields := map[string]repoField{}
	for structName, sf := range fieldsByStruct {
		for _, rf := range sf.RepoFields {
			if !rf.Guarded {
				continue
			}
			guardedRepoFields[structName+"."+rf.Name] = rf
		}
	}

	for _, m := range methods {
		if m.GuardedRepoWriteCalls > 0 {
			report.GuardedRepoWriteCallsites += m.GuardedRepoWriteCalls
			report.Violations = append(report.Violations, m)
		}
		report.AggregateWriteCallsites += m.AggregateWriteCalls
	}

	fieldKeys := make([]string, 0, len(guardedRepoFields))
	for k := range guardedRepoFields {
		fieldKeys = append(fieldKeys, k)
	}
	sort.Strings(fieldKeys)
	for _, k := range fieldKeys {
		report.GuardedRepoFieldInventory = append(report.GuardedRepoFieldInventory, guardedRepoFields[k])
	}
	return report
}

func recvInfo(field *ast.Field) (string, string) {
	if field == nil || len(field.Names) == 0 {
		return "", ""
	}
	recvName := field.Names[0].Name
	switch t := field.Type.(type) {
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return recvName, id.Name
		}
	case *ast.Ident:
		return recvName, t.Name
	}
	return "", ""
}

func domainForRepoType(repoType string) (string, bool) {
	rt := strings.TrimSpace(repoType)
	switch {
	case strings.HasPrefix(rt, "Session"), strings.HasPrefix(rt, "Record"):
		return "Telemetry", true
	case strings.HasPrefix(rt, "Alert"):
		return "Alerts", true
	case strings.HasPrefix(rt, "Analysis"):
		return "Analysis", false
	case strings.HasPrefix(rt, "Pet"), strings.HasPrefix(rt, "Device"), strings.HasPrefix(rt, "Binding"):
		return "Registry", false
	case strings.HasPrefix(rt, "User"):
		return "Identity", false
	default:
		return "Other", false
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
