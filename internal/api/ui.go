package api

import "net/http"

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>My Local AI</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <style>
        .status-dot { width: 10px; height: 10px; border-radius: 50%; display: inline-block; }
        .status-up { background-color: #10b981; }
        .status-down { background-color: #ef4444; }
        .chat-message { padding: 0.75rem 1rem; border-radius: 0.5rem; margin-bottom: 0.5rem; white-space: pre-wrap; word-break: break-word; }
        .chat-user { background-color: #dbeafe; margin-left: 2rem; }
        .chat-assistant { background-color: #f3f4f6; margin-right: 2rem; }
    </style>
</head>
<body class="bg-gray-50 min-h-screen">
    <div class="max-w-4xl mx-auto p-4">
        <header class="flex items-center justify-between mb-4">
            <h1 class="text-2xl font-bold text-gray-800">My Local AI</h1>
            <div class="flex items-center gap-2">
                <span id="status-dot" class="status-dot status-down"></span>
                <span id="status-text" class="text-sm text-red-600">Checking...</span>
            </div>
        </header>

        <div class="bg-white rounded-lg shadow p-4 mb-4">
            <div class="grid grid-cols-1 md:grid-cols-3 gap-4">
                <div>
                    <label class="block text-sm font-medium text-gray-700 mb-1">Model</label>
                    <select id="model-select" class="w-full border rounded px-2 py-1.5 text-sm"></select>
                </div>
                <div>
                    <label class="block text-sm font-medium text-gray-700 mb-1">
                        Temperature: <span id="temperature-value">0.7</span>
                    </label>
                    <input id="temperature-slider" type="range" min="0" max="1.5" step="0.1" value="0.7" class="w-full">
                </div>
                <div>
                    <label class="block text-sm font-medium text-gray-700 mb-1">Max tokens (0 = no limit)</label>
                    <input id="max-tokens" type="number" min="0" value="0" class="w-full border rounded px-2 py-1.5 text-sm">
                </div>
            </div>
        </div>

        <div class="bg-white rounded-lg shadow p-4 mb-4">
            <div id="chat-history" class="h-96 overflow-y-auto mb-3 border rounded p-3 bg-gray-50"></div>
            <div class="flex gap-2">
                <textarea id="chat-input" rows="2" placeholder="Ask something..."
                    class="flex-1 border rounded px-3 py-2 text-sm resize-none"></textarea>
                <div class="flex flex-col gap-2">
                    <button id="send-btn" class="bg-blue-600 hover:bg-blue-700 text-white px-4 py-1.5 rounded text-sm">Send</button>
                    <button id="clear-btn" class="bg-gray-200 hover:bg-gray-300 text-gray-700 px-4 py-1.5 rounded text-sm">Clear</button>
                </div>
            </div>
            <div class="mt-2">
                <label class="text-sm text-gray-600 cursor-pointer">
                    Attach PDF <input id="attach-input" type="file" accept=".pdf" class="text-sm">
                </label>
            </div>
        </div>

        <div class="bg-white rounded-lg shadow p-4">
            <h2 class="text-lg font-semibold text-gray-800 mb-2">Pull a model</h2>
            <div class="flex gap-2">
                <input id="pull-input" type="text" placeholder="e.g. llama3.1:8b"
                    class="flex-1 border rounded px-3 py-2 text-sm">
                <button id="pull-btn" class="bg-green-600 hover:bg-green-700 text-white px-4 py-1.5 rounded text-sm">Pull</button>
            </div>
            <div id="pull-status" class="mt-2 text-sm text-gray-600 font-mono"></div>
        </div>
    </div>

    <script>
        const els = {
            statusDot: document.getElementById('status-dot'),
            statusText: document.getElementById('status-text'),
            modelSelect: document.getElementById('model-select'),
            temperatureSlider: document.getElementById('temperature-slider'),
            temperatureValue: document.getElementById('temperature-value'),
            maxTokens: document.getElementById('max-tokens'),
            chatHistory: document.getElementById('chat-history'),
            chatInput: document.getElementById('chat-input'),
            sendBtn: document.getElementById('send-btn'),
            clearBtn: document.getElementById('clear-btn'),
            attachInput: document.getElementById('attach-input'),
            pullInput: document.getElementById('pull-input'),
            pullBtn: document.getElementById('pull-btn'),
            pullStatus: document.getElementById('pull-status'),
        };

        let sessionID = null;
        let busy = false;

        document.addEventListener('DOMContentLoaded', async () => {
            els.temperatureSlider.addEventListener('input', () => {
                els.temperatureValue.textContent = parseFloat(els.temperatureSlider.value).toFixed(1);
            });
            els.sendBtn.addEventListener('click', sendMessage);
            els.chatInput.addEventListener('keydown', (e) => {
                if (e.key === 'Enter' && !e.shiftKey) { e.preventDefault(); sendMessage(); }
            });
            els.clearBtn.addEventListener('click', clearHistory);
            els.pullBtn.addEventListener('click', pullModel);
            els.attachInput.addEventListener('change', attachFile);

            await createSession();
            await checkHealth();
            setInterval(checkHealth, 10000);
        });

        async function createSession() {
            try {
                const resp = await fetch('/api/sessions', { method: 'POST' });
                const data = await resp.json();
                sessionID = data.id;
            } catch (err) {
                appendMessage('assistant', 'Failed to start a session: ' + err.message);
            }
        }

        async function checkHealth() {
            try {
                const resp = await fetch('/api/health');
                const data = await resp.json();
                if (data.status === 'ok') {
                    els.statusDot.className = 'status-dot status-up';
                    els.statusText.textContent = 'Ollama running';
                    els.statusText.className = 'text-sm text-green-600';
                    updateModels(data.models || []);
                } else {
                    setDown();
                }
            } catch (err) {
                setDown();
            }
        }

        function setDown() {
            els.statusDot.className = 'status-dot status-down';
            els.statusText.textContent = 'Ollama unreachable';
            els.statusText.className = 'text-sm text-red-600';
        }

        function updateModels(models) {
            const current = els.modelSelect.value;
            els.modelSelect.innerHTML = '';
            if (models.length === 0) {
                const opt = document.createElement('option');
                opt.textContent = 'No models installed';
                opt.value = '';
                els.modelSelect.appendChild(opt);
                return;
            }
            models.forEach(name => {
                const opt = document.createElement('option');
                opt.value = name;
                opt.textContent = name;
                els.modelSelect.appendChild(opt);
            });
            if (current && models.includes(current)) {
                els.modelSelect.value = current;
            }
        }

        function appendMessage(role, text) {
            const div = document.createElement('div');
            div.className = 'chat-message ' + (role === 'user' ? 'chat-user' : 'chat-assistant');
            div.textContent = text;
            els.chatHistory.appendChild(div);
            els.chatHistory.scrollTop = els.chatHistory.scrollHeight;
            return div;
        }

        async function sendMessage() {
            const message = els.chatInput.value.trim();
            if (!message || busy || !sessionID) return;
            const model = els.modelSelect.value;
            if (!model) {
                appendMessage('assistant', 'No model selected. Pull one first.');
                return;
            }

            busy = true;
            els.sendBtn.disabled = true;
            els.chatInput.value = '';
            appendMessage('user', message);
            const out = appendMessage('assistant', '');

            try {
                const resp = await fetch('/api/chat', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({
                        session_id: sessionID,
                        model: model,
                        message: message,
                        temperature: parseFloat(els.temperatureSlider.value),
                        max_tokens: parseInt(els.maxTokens.value) || 0,
                    }),
                });
                if (!resp.ok) {
                    const body = await resp.json();
                    throw new Error(body.error ? body.error.message : resp.statusText);
                }
                await readEvents(resp, (ev) => {
                    if (ev.delta) {
                        out.textContent += ev.delta;
                        els.chatHistory.scrollTop = els.chatHistory.scrollHeight;
                    }
                    if (ev.error) {
                        out.textContent += (out.textContent ? '\n' : '') + 'Error: ' + ev.error;
                    }
                });
            } catch (err) {
                out.textContent += (out.textContent ? '\n' : '') + 'Error: ' + err.message;
            } finally {
                busy = false;
                els.sendBtn.disabled = false;
            }
        }

        async function pullModel() {
            const name = els.pullInput.value.trim();
            if (!name || busy) return;

            busy = true;
            els.pullBtn.disabled = true;
            els.pullStatus.textContent = 'Starting pull...';

            try {
                const resp = await fetch('/api/pull', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ name: name }),
                });
                if (!resp.ok) {
                    const body = await resp.json();
                    throw new Error(body.error ? body.error.message : resp.statusText);
                }
                await readEvents(resp, (ev) => {
                    if (ev.line) els.pullStatus.textContent = ev.line;
                    if (ev.done) {
                        if (ev.success) {
                            els.pullStatus.textContent = 'Pulled ' + name + ' successfully.';
                            checkHealth();
                        } else {
                            els.pullStatus.textContent = 'Pull failed: ' + ev.last;
                        }
                    }
                });
            } catch (err) {
                els.pullStatus.textContent = 'Pull failed: ' + err.message;
            } finally {
                busy = false;
                els.pullBtn.disabled = false;
            }
        }

        async function clearHistory() {
            if (!sessionID) return;
            try {
                await fetch('/api/sessions/' + sessionID + '/clear', { method: 'POST' });
                els.chatHistory.innerHTML = '';
            } catch (err) {
                appendMessage('assistant', 'Failed to clear history: ' + err.message);
            }
        }

        async function attachFile() {
            const file = els.attachInput.files[0];
            if (!file) return;
            const form = new FormData();
            form.append('file', file);
            try {
                const resp = await fetch('/api/attach', { method: 'POST', body: form });
                const data = await resp.json();
                if (!resp.ok) {
                    throw new Error(data.error ? data.error.message : resp.statusText);
                }
                const prefix = els.chatInput.value ? els.chatInput.value + '\n\n' : '';
                els.chatInput.value = prefix + 'Document "' + data.name + '":\n' + data.text + '\n\n';
            } catch (err) {
                appendMessage('assistant', 'Failed to read attachment: ' + err.message);
            } finally {
                els.attachInput.value = '';
            }
        }

        // Parses a text/event-stream body line by line, invoking fn for
        // each decoded data payload.
        async function readEvents(resp, fn) {
            const reader = resp.body.getReader();
            const decoder = new TextDecoder();
            let buffer = '';
            while (true) {
                const { done, value } = await reader.read();
                if (done) break;
                buffer += decoder.decode(value, { stream: true });
                const lines = buffer.split('\n');
                buffer = lines.pop();
                for (const line of lines) {
                    if (!line.startsWith('data: ')) continue;
                    try {
                        fn(JSON.parse(line.substring(6)));
                    } catch (e) {}
                }
            }
        }
    </script>
</body>
</html>
`
