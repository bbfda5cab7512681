package server

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Phrase Hat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Phrase Hat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="gameInput" value="test-game">
        <input type="text" id="playerInput" value="test-player">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="phrasesInput" placeholder="Comma-separated phrases...">
        <button id="sendButton" onclick="sendPhrases()">Record</button>
    </div>

    <div id="events"></div>

    <script>
        let source = null;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color || 'gray';
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const game = encodeURIComponent(document.getElementById('gameInput').value);
            const player = encodeURIComponent(document.getElementById('playerInput').value);
            source = new EventSource('/api/stream/' + game + '/' + player + '/events');

            source.onopen = function() {
                addLine('Stream opened');
                updateStatus(true);
                fetch('/api/gamestate/' + game)
                    .then(r => r.json())
                    .then(state => addLine('current hat: ' + state.hat.join(', '), 'green'));
            };

            source.onmessage = function(event) {
                const state = JSON.parse(event.data);
                addLine('#' + event.lastEventId + ' hat: ' + state.hat.join(', '), 'green');
            };

            source.onerror = function() {
                addLine('Stream error');
            };
        }

        function disconnect() {
            if (source) {
                source.close();
                source = null;
            }
            addLine('Stream closed');
            updateStatus(false);
        }

        function toggleConnection() {
            if (source) {
                disconnect();
            } else {
                connect();
            }
        }

        function sendPhrases() {
            const input = document.getElementById('phrasesInput');
            const phrases = input.value.split(',').map(p => p.trim()).filter(p => p.length > 0);
            if (phrases.length === 0) {
                return;
            }
            const game = encodeURIComponent(document.getElementById('gameInput').value);
            const player = encodeURIComponent(document.getElementById('playerInput').value);
            fetch('/games/' + game + '/' + player + '/recordphrases', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ phrases: phrases })
            }).then(r => r.text()).then(text => addLine(text, 'blue'));
            input.value = '';
        }
    </script>
</body>
</html>`
