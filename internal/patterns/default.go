package patterns

import "regexp"

// DefaultVersion identifies the built-in table. Bump when the built-in
// pattern set changes in a way that invalidates cached decisions.
const DefaultVersion = "builtin-1"

// Default builds the built-in pattern table. The feature pattern names are a
// wire contract: a trained model records the exact column list it was fitted
// with, and the extractor must reproduce it bit for bit.
func Default() *Table {
	t, err := build(DefaultVersion)
	if err != nil {
		// Built-in patterns are compiled at startup from constants; a failure
		// here is a programming error, not a runtime condition.
		panic(err)
	}
	return t
}

func build(version string) (*Table, error) {
	b := newBuilder(version)

	// SQL injection
	b.feature("has_sql_union", TargetURL, `\bunion\b.*\bselect\b`)
	b.feature("has_or_true", TargetURL, `(\bor\b.+(?:=|like).*?\btrue\b|\b1[ =]1\b)`)
	b.feature("has_sql_comment", TargetURL, `(--|#|/\*|\*/)`)
	b.feature("has_sql_functions", TargetURL, `(concat|group_concat|substring|ascii|char|sleep|benchmark|waitfor)`)
	b.feature("has_information_schema", TargetURL, `information_schema`)
	b.feature("has_sql_injection", TargetURL, `('.*=|'.*--|'.*#|\d+\s*=\s*\d+)`)

	// XSS
	b.feature("has_script_tag", TargetURL, `<script`)
	b.feature("has_svg_tag", TargetURL, `<svg\s`)
	b.feature("has_onload", TargetURL, `on\w+\s*=`)
	b.feature("has_javascript", TargetURL, `javascript:`)
	b.feature("has_vbscript", TargetURL, `vbscript:`)
	b.feature("has_data_uri", TargetURL, `data:text/html`)
	b.feature("has_document_write", TargetURL, `document\.(write|writeln)`)
	b.feature("has_eval_function", TargetURL, `eval\s*\(`)

	// Command / code injection
	b.feature("has_cmd_sep", TargetURL, "[;&|`$]")
	b.feature("has_cmd_binary", TargetURL, `(rm\s|cat\s|ls\s|pwd\s|whoami\s|id\s|uname\s|ps\s|wget\s|curl\s|bash\s|sh\s|nc\s|netcat\s)`)
	b.feature("has_cmd_param", TargetURL, `(cmd=|command=|exec=|shell=|system=)`)
	b.feature("has_win_cmd", TargetURL, `(cmd\.exe|powershell|dir\s|type\s|copy\s|del\s|tasklist|ipconfig|net\s)`)
	b.feature("has_env_var", TargetURL, `(\$\{.*\}|%.*%|\$[A-Z_][A-Z0-9_]*)`)
	b.feature("has_redirection", TargetURL, `(>>|<<|>\s|<\s)`)
	b.feature("has_pipe_chain", TargetURL, `\|\s*\w+`)
	b.feature("has_command_subst", TargetURL, "(\\$\\(|`.*`)")
	b.feature("has_php_tags", TargetURL, `<\?php`)
	b.feature("has_php_functions", TargetURL, `(file_get_contents|file_put_contents|fopen|readfile|highlight_file|show_source)`)
	b.feature("has_base64_decode", TargetURL, `base64_decode`)
	b.feature("has_code_eval", TargetURL, `(eval|assert|create_function)\s*\(`)

	// SSRF / RFI
	b.feature("has_file_protocol", TargetURL, `file://`)
	b.feature("has_internal_ip", TargetURL, `(localhost|127\.0\.0\.1|0\.0\.0\.0|169\.254\.169\.254)`)
	b.feature("has_private_ip", TargetURL, `(10\.\d+\.\d+\.\d+|192\.168\.\d+\.\d+|172\.(?:1[6-9]|2\d|3[01])\.\d+\.\d+)`)
	b.feature("has_metadata", TargetURL, `metadata`)
	b.feature("has_cloud_metadata", TargetURL, `metadata\.(google|amazonaws|azure)`)
	b.feature("has_url_param", TargetURL, `(url|proxy|redirect|path|file|src|target|uri)=`)
	b.feature("has_include_param", TargetURL, `(include|require|page|template|view|content)=`)
	b.feature("has_gopher_dict", TargetURL, `(gopher|dict|ldap|sftp)://`)

	// Directory traversal
	b.feature("has_dir_trav", TargetURL, `\.\./`)
	b.feature("has_dir_trav_enc", TargetURL, `(%2e%2e[/\\]|%252e%252e[/\\]|%c0%ae%c0%ae)`)
	b.feature("has_sensitive_file", TargetURL, `(etc/passwd|etc/shadow|etc/hosts|web\.config|wp-config\.php|\.env|config\.php|boot\.ini|win\.ini|system32)`)
	b.feature("has_null_byte", TargetURL, `%00`)
	b.feature("has_proc_access", TargetURL, `(proc/self|proc/version|proc/cmdline)`)
	b.feature("has_windows_files", TargetURL, `(windows/system32|system32/|boot\.ini|win\.ini)`)

	// Webshell
	b.feature("has_webshell_upload", TargetURL, `(upload|fileupload|file_upload).*\.(php|asp|aspx|jsp|py|pl|cgi)(\?|&|$)`)
	b.feature("has_webshell_eval", TargetURL, `(eval|assert|exec|system|shell_exec|passthru)\s*\(\s*\$_(GET|POST|REQUEST|COOKIE)\[`)
	b.feature("has_webshell_functions", TargetURL, `(file_get_contents|file_put_contents|fwrite|fputs|fopen|readfile|include|require).*\$_(GET|POST|REQUEST)`)
	b.feature("has_webshell_names", TargetURL, `(c99|r57|b374k|wso|crystal|antichat|tryag|p0wny|mini\.php|webshell|backdoor|shell\.php)`)
	b.feature("has_webshell_params", TargetURL, `(\?|&)(cmd|command|exec|shell|system|run|action|do|op|operation)=`)
	b.feature("has_webshell_base64", TargetURL, `eval\s*\(\s*base64_decode\s*\(`)
	b.feature("has_webshell_gzinflate", TargetURL, `eval\s*\(\s*gzinflate\s*\(`)
	b.feature("has_webshell_chr", TargetURL, `chr\s*\(\s*\d+\s*\)\s*\.\s*chr`)
	b.feature("has_webshell_hex", TargetURL, `\\x[0-9a-f]{2,}`)
	b.feature("has_webshell_obfuscate", TargetURL, `(\$[a-z_]+\[['"]\w+['"]\]\s*=\s*['"]\w+['"]\s*;){3,}`)
	b.feature("has_jsp_webshell", TargetURL, `\.jsp\?.*(?:cmd|exec|shell|system|action|do|op)=`)
	b.feature("has_jsp_upload", TargetURL, `/uploads?/.*\.jsp\?`)
	b.feature("has_asp_webshell", TargetURL, `\.aspx?\?.*(?:cmd|exec|shell|eval)=`)
	b.feature("has_webshell_dir", TargetURL, `/shells?/.*\.(php|jsp|asp|aspx)`)
	b.feature("has_move_uploaded", TargetURL, `move_uploaded_file\s*\(`)
	b.feature("has_webshell_vars", TargetURL, `\$_(GET|POST|REQUEST|COOKIE)\[('|")[^'"]*cmd`)

	// TLS probe
	b.feature("has_tls_client_hello", TargetURL, `\b(client_hello|server_hello)\b`)

	// Scanner tool user-agents
	b.feature("ua_nikto", TargetAgent, `nikto`)
	b.feature("ua_sqlmap", TargetAgent, `sqlmap`)
	b.feature("ua_nmap", TargetAgent, `nmap`)
	b.feature("ua_burp", TargetAgent, `burp`)
	b.feature("ua_owasp_zap", TargetAgent, `(owasp.*zap|zaproxy)`)
	b.feature("ua_curl", TargetAgent, `curl/`)
	b.feature("ua_wget", TargetAgent, `wget/`)

	// General heuristics
	b.feature("has_multiple_dots", TargetURL, `\.{3,}`)
	b.feature("has_long_param", TargetURL, `[?&]\w+=.{100,}`)
	b.feature("has_hex_encoding", TargetURL, `(%[0-9a-f]{2}){5,}`)
	b.feature("has_unicode_bypass", TargetURL, `(%u[0-9a-f]{4}|\\u[0-9a-f]{4})`)
	b.feature("has_null_char", TargetURL, `(%00|\\x00|\\0)`)
	b.feature("has_unusual_method", TargetURL, `(connect|trace|options|patch|propfind|proppatch|mkcol|copy|move|lock|unlock)`)

	// Rule-evaluation groups. A signature can appear both as a feature column
	// and in a group; features feed the model, groups feed the rule engine.
	b.group(SQLiHigh,
		`'.*--`, `'.*#`, `'.*=`, `1=1`, `'='`, `union\s+select`, `drop\s+table`,
		`delete\s+from`, `update\s+.*\s+set`, `exec\s+xp_`, `into\s+outfile`,
		`load_file`, `sleep\s*\(`, `benchmark\s*\(`, `concat\s*\(`,
		`group_concat\s*\(`, `having\s+\d+=\d+`)
	b.group(SQLiLow, `select\s+.*\s+from`, `'`, `"`, `--`, `;`)
	b.group(Traversal, `(\.\./)+`, `\.\.[\\/]`, `[\\/]\.\.[\\/]`, `%2e%2e[\\/]`, `%252e%252e[\\/]`)
	b.group(CodeInjection,
		`<\?php`, `(?:system|exec|passthru|shell_exec)\(`, `\beval\s*\(`,
		`file_get_contents\(`, `include\s*\(.*\)`, `require\s*\(.*\)`)
	b.group(XSS,
		`<script`, `<svg`, `<img`, `<iframe`, `javascript:`, `onerror=`,
		`onload=`, `onclick=`, `onfocus=`, `alert\s*\(`, `eval\s*\(`)
	b.group(SSRF,
		`(url|proxy|redirect|path|file|src|target|uri)=.*(?:file:|https?://(?:169\.254\.169\.254|localhost|127\.0\.0\.1|0\.0\.0\.0|%3a%2f%2f))`,
		`metadata`, `169\.254\.169\.254`, `localhost`, `127\.0\.0\.1`)
	b.group(TLSProbe, `\\x16\\x03`, `\b(client_hello|server_hello)\b`)
	b.group(Webshell,
		`(c99|r57|b374k|wso|p0wny|mini\.php|webshell|backdoor|shell\.php)`,
		`/shells?/.*\.(php|jsp|asp|aspx)`,
		`\.jsp\?.*(?:cmd|exec|shell|system)=`,
		`\.aspx?\?.*(?:cmd|exec|shell|eval)=`,
		`eval\s*\(\s*base64_decode\s*\(`)
	b.group(UploadExec,
		`(upload|fileupload|file_upload).*\.(php|asp|aspx|jsp|py|pl|cgi)(\?|&|$)`,
		`/uploads?/.*\.jsp\?`)
	b.group(Static,
		`^/static/.*\.(js|css|png|jpg|gif|svg|woff|ttf)$`,
		`^/assets/.*\.(js|css|png|jpg|gif|svg|woff|ttf)$`,
		`^/dist/.*\.(js|css|png|jpg|gif|svg|woff|ttf)$`,
		`^/build/.*\.(js|css|png|jpg|gif|svg|woff|ttf)$`,
		`^/.*\.(js|css|png|jpg|gif|ico|svg|woff|ttf)$`)

	t := b.t
	t.healthPaths = []string{"/healthz", "/health", "/ping", "/status", "/ready", "/live"}
	t.healthAgents = []string{"kube-probe", "prometheus", "grafana", "datadog", "newrelic"}
	t.sqlKeywords = []string{"select", "from", "where", "group by", "order by", "having", "join"}
	t.riskyPunct = []string{"'", `"`, "--", "#", ";", " union ", " or "}
	t.dangerousTokens = []string{"rm", "cat", "|", ";", "bash", "wget", "curl", "nc"}
	t.cmdSeparators = []string{";", "|", "&&", "`", "$(", "$"}
	t.sensitiveFiles = []string{
		"etc/passwd", "etc/shadow", "etc/hosts", "proc/self",
		"wp-config.php", "config.php", ".env", "web.config", ".htaccess",
	}
	t.devopsPrefixes = []string{"/jenkins", "/ci/", "/build/", "/deploy", "/grafana", "/monitoring", "/actuator"}
	t.searchPrefixes = []string{"/search", "/find", "/query", "/autocomplete"}

	var err error
	if t.browserRE, err = regexp.Compile(`(?i)(mozilla|chrome|safari|firefox|edge)`); err != nil {
		return nil, err
	}
	if t.loginPathRE, err = regexp.Compile(`^/(login|signin|auth|api/login)`); err != nil {
		return nil, err
	}
	if t.itemPathRE, err = regexp.Compile(`^/(products|items)/\d+$`); err != nil {
		return nil, err
	}
	if t.qParamRE, err = regexp.Compile(`q=([^&]+)`); err != nil {
		return nil, err
	}

	return b.build()
}
